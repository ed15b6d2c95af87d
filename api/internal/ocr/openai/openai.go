package openai

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"medlist/api/internal/ocr"
	"medlist/api/internal/ocr/types"
	"medlist/api/internal/util"
)

const DefaultModel = "gpt-4o-mini"

type Engine struct {
	Model     string
	MaxTokens int
	Attempts  int
	prompt    string
	client    *openai.Client
}

func New(s ocr.Settings) *Engine {
	s = s.WithDefaults()
	if strings.TrimSpace(s.Model) == "" {
		s.Model = DefaultModel
	}
	cfg := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	cfg.HTTPClient = newHTTPClient()
	return &Engine{
		Model:     s.Model,
		MaxTokens: s.MaxTokens,
		Attempts:  s.Attempts,
		prompt:    s.Prompt,
		client:    openai.NewClientWithConfig(cfg),
	}
}

func newHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second, // TCP connect
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// time to first header is long for vision requests
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	// Timeout=0: the deadline is owned by the request context.
	return &http.Client{Timeout: 0, Transport: tr}
}

func (e *Engine) Name() string     { return "openai" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) ExtractMedications(ctx context.Context, img types.ImagePayload) (string, error) {
	if !util.IsImageMIME(img.MediaType) {
		return "", errors.Errorf("openai: unsupported image type %q", img.MediaType)
	}
	req := openai.ChatCompletionRequest{
		Model:     e.Model,
		MaxTokens: e.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    img.DataURL(),
							Detail: openai.ImageURLDetailHigh,
						},
					},
					{Type: openai.ChatMessagePartTypeText, Text: e.prompt},
				},
			},
		},
	}

	return ocr.Retry(ctx, e.Attempts, func(ctx context.Context) (string, error) {
		resp, err := e.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", classify(errors.Wrap(err, "openai chat completion"))
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", errors.New("openai: empty response")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && ocr.IsClientStatus(apiErr.HTTPStatusCode) {
		return ocr.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && ocr.IsClientStatus(reqErr.HTTPStatusCode) {
		return ocr.Permanent(err)
	}
	return err
}
