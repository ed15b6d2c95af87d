package medlist

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medlist/api/internal/intake"
	"medlist/api/internal/ocr"
	"medlist/api/internal/ocr/types"
)

type fakeEngine struct {
	reply string
	err   error
	delay time.Duration
	calls int
	got   types.ImagePayload
}

func (f *fakeEngine) Name() string     { return "anthropic" }
func (f *fakeEngine) GetModel() string { return "fake" }
func (f *fakeEngine) ExtractMedications(ctx context.Context, img types.ImagePayload) (string, error) {
	f.calls++
	f.got = img
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.reply, f.err
}

func newService(f *fakeEngine) *Service {
	return NewService(ocr.NewEngines("anthropic", f), nil, nil)
}

func dataURL(mime string, b []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

func TestParse_OK(t *testing.T) {
	f := &fakeEngine{reply: "```json\n{\"medications\":[{\"medication_name\":\"Aspirin 81 MG\",\"frequency\":\"daily\",\"instructions\":\"Take 1 tablet\",\"is_prn\":false}]}\n```"}
	s := newService(f)

	list, err := s.Parse(context.Background(), Request{
		Adapter: "test",
		Input:   intake.Input{ImageData: dataURL("image/jpeg", []byte("jpeg"))},
	})
	require.NoError(t, err)
	require.Len(t, list.Medications, 1)
	assert.Equal(t, "Aspirin 81 MG", list.Medications[0].MedicationName)
	assert.Equal(t, "image/jpeg", f.got.MediaType)
	assert.Equal(t, []byte("jpeg"), f.got.Bytes)
}

func TestParse_NoImageSkipsModel(t *testing.T) {
	f := &fakeEngine{reply: `{"medications":[]}`}
	_, err := newService(f).Parse(context.Background(), Request{})
	require.ErrorIs(t, err, types.ErrNoImage)
	assert.Equal(t, 0, f.calls)
	assert.Equal(t, "invalid_input", Outcome(err))
}

func TestParse_Errors(t *testing.T) {
	img := intake.Input{ImageData: dataURL("image/png", []byte("png"))}

	tests := []struct {
		name    string
		engine  *fakeEngine
		llm     string
		outcome string
	}{
		{name: "upstream", engine: &fakeEngine{err: errors.New("rate limited")}, outcome: "upstream"},
		{name: "extraction", engine: &fakeEngine{reply: "I cannot read this image"}, outcome: "extraction"},
		{name: "schema", engine: &fakeEngine{reply: `{"meds":[]}`}, outcome: "schema"},
		{name: "unknown engine", engine: &fakeEngine{}, llm: "yandex", outcome: "unknown_engine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(tt.engine).Parse(context.Background(), Request{LLMName: tt.llm, Input: img})
			require.Error(t, err)
			assert.Equal(t, tt.outcome, Outcome(err))
		})
	}
}

func TestParse_UpstreamErrorCarriesEngine(t *testing.T) {
	f := &fakeEngine{err: errors.New("401 unauthorized")}
	_, err := newService(f).Parse(context.Background(), Request{Input: intake.Input{ImageData: "aGVsbG8="}})

	var up *types.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "anthropic", up.Engine)
	assert.Contains(t, err.Error(), "401 unauthorized")
}

func TestParse_HonorsCancellation(t *testing.T) {
	f := &fakeEngine{reply: `{"medications":[]}`, delay: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newService(f).Parse(ctx, Request{Input: intake.Input{ImageData: "aGVsbG8="}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "cancelled", Outcome(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}
