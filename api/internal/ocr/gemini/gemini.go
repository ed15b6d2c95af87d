package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"medlist/api/internal/ocr"
	"medlist/api/internal/ocr/types"
)

const DefaultModel = "gemini-2.5-flash"

type generateFunc func(ctx context.Context, cfg genai.GenerationConfig, parts []genai.Part) (*genai.GenerateContentResponse, error)

type Engine struct {
	Model     string
	MaxTokens int
	Attempts  int
	prompt    string
	cl        *genai.Client
	generate  generateFunc
}

// New dials the client once. Call Close on shutdown.
func New(ctx context.Context, s ocr.Settings) (*Engine, error) {
	s = s.WithDefaults()
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	if strings.TrimSpace(s.Model) == "" {
		s.Model = DefaultModel
	}
	opts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(s.APIKey))}
	if s.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(s.BaseURL))
	}
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "gemini client")
	}
	e := &Engine{
		Model:     strings.TrimSpace(s.Model),
		MaxTokens: s.MaxTokens,
		Attempts:  s.Attempts,
		prompt:    s.Prompt,
		cl:        cl,
	}
	e.generate = e.clientGenerate
	return e, nil
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Close() error {
	if e.cl == nil {
		return nil
	}
	return e.cl.Close()
}

// clientGenerate builds a fresh GenerativeModel per call; it carries mutable config.
func (e *Engine) clientGenerate(ctx context.Context, cfg genai.GenerationConfig, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	m := e.cl.GenerativeModel(e.Model)
	if m == nil {
		return nil, errors.New("gemini: model is nil")
	}
	m.GenerationConfig = cfg
	return m.GenerateContent(ctx, parts...)
}

func generationConfig(maxTokens int) genai.GenerationConfig {
	return genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		MaxOutputTokens:  ptrInt32(int32(maxTokens)),
		ResponseMIMEType: "application/json",
	}
}

func (e *Engine) ExtractMedications(ctx context.Context, img types.ImagePayload) (string, error) {
	cfg := generationConfig(e.MaxTokens)
	parts := []genai.Part{
		genai.Blob{MIMEType: img.MediaType, Data: img.Bytes},
		genai.Text(e.prompt),
	}

	return ocr.Retry(ctx, e.Attempts, func(ctx context.Context) (string, error) {
		resp, err := e.generate(ctx, cfg, parts)
		if err != nil {
			wrapped := errors.Wrap(err, "gemini generate")
			if isRequestError(err) {
				return "", ocr.Permanent(wrapped)
			}
			return "", wrapped
		}
		txt := firstText(resp)
		if strings.TrimSpace(txt) == "" {
			return "", errors.New("gemini: empty response")
		}
		return txt, nil
	})
}

// isRequestError reports failures a retry cannot fix: bad key, bad argument, unknown model.
func isRequestError(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return ocr.IsClientStatus(gerr.Code)
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound, codes.FailedPrecondition:
		return true
	}
	return false
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
