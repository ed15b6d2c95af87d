package anthropic

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"medlist/api/internal/ocr"
	"medlist/api/internal/ocr/types"
)

const DefaultModel = "claude-sonnet-4-20250514"

type Engine struct {
	Model     string
	MaxTokens int
	prompt    string
	client    anthropic.Client
}

// New builds the client once; the returned Engine is safe for concurrent use.
func New(s ocr.Settings) *Engine {
	s = s.WithDefaults()
	if strings.TrimSpace(s.Model) == "" {
		s.Model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(s.Attempts - 1),
		option.WithHTTPClient(newHTTPClient()),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &Engine{
		Model:     s.Model,
		MaxTokens: s.MaxTokens,
		prompt:    s.Prompt,
		client:    anthropic.NewClient(opts...),
	}
}

// Vision requests are slow to first byte; the overall deadline comes from ctx.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 120 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   100,
		},
	}
}

func (e *Engine) Name() string     { return "anthropic" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) ExtractMedications(ctx context.Context, img types.ImagePayload) (string, error) {
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.Model),
		MaxTokens: int64(e.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(img.MediaType, img.Base64()),
				anthropic.NewTextBlock(e.prompt),
			),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "anthropic messages")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type != "text" || block.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(block.Text)
	}
	if b.Len() == 0 {
		return "", errors.Errorf("anthropic: empty response (stop_reason=%s)", msg.StopReason)
	}
	return b.String(), nil
}
