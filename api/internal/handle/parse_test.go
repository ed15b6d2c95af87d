package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medlist/api/internal/medlist"
	"medlist/api/internal/ocr"
	"medlist/api/internal/ocr/types"
)

type fakeEngine struct {
	name  string
	reply string
	err   error
	calls int
	got   types.ImagePayload
	ctx   context.Context
}

func (f *fakeEngine) Name() string     { return f.name }
func (f *fakeEngine) GetModel() string { return "fake" }
func (f *fakeEngine) ExtractMedications(ctx context.Context, img types.ImagePayload) (string, error) {
	f.calls++
	f.got = img
	f.ctx = ctx
	return f.reply, f.err
}

const okReply = `{"medications":[{"medication_name":"Lisinopril 10 MG Oral Tablet","frequency":"daily","instructions":"Take 1 tablet by mouth daily","is_prn":false,"indication":""}]}`

func newHandle(engs ...ocr.Engine) *Handle {
	svc := medlist.NewService(ocr.NewEngines("anthropic", engs...), nil, nil)
	return New(svc, nil, 1024, 30*time.Second)
}

func doJSON(t *testing.T, h *Handle, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Parse(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestParse_JSONDataURL(t *testing.T) {
	f := &fakeEngine{name: "anthropic", reply: "Sure:\n```json\n" + okReply + "\n```"}
	h := newHandle(f)

	img := base64.StdEncoding.EncodeToString([]byte("jpeg"))
	rec := doJSON(t, h, `{"imageData":"data:image/jpeg;base64,`+img+`"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, okReply, rec.Body.String())
	assert.Equal(t, "image/jpeg", f.got.MediaType)
	assert.Equal(t, []byte("jpeg"), f.got.Bytes)

	_, hasDeadline := f.ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestParse_JSONBareBase64DefaultsToPNG(t *testing.T) {
	f := &fakeEngine{name: "anthropic", reply: `{"medications":[]}`}
	rec := doJSON(t, newHandle(f), `{"imageData":"aGVsbG8="}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"medications":[]}`, rec.Body.String())
	assert.Equal(t, "image/png", f.got.MediaType)
}

func TestParse_Multipart(t *testing.T) {
	f := &fakeEngine{name: "anthropic", reply: okReply}
	h := newHandle(f)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="list.webp"`)
	hdr.Set("Content-Type", "image/webp")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte("webp-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/parse", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Parse(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/webp", f.got.MediaType)
	assert.Equal(t, []byte("webp-bytes"), f.got.Bytes)
}

func TestParse_MultipartWithoutImage(t *testing.T) {
	f := &fakeEngine{name: "anthropic", reply: okReply}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "nothing here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/parse", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newHandle(f).Parse(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No image provided", decode(t, rec)["error"])
	assert.Equal(t, 0, f.calls)
}

func TestParse_RawImageBody(t *testing.T) {
	f := &fakeEngine{name: "anthropic", reply: `{"medications":[]}`}
	req := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader("gif-bytes"))
	req.Header.Set("Content-Type", "image/gif")
	rec := httptest.NewRecorder()
	newHandle(f).Parse(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", f.got.MediaType)
}

func TestParse_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		engine  *fakeEngine
		body    string
		code    int
		error   string
		details string
	}{
		{name: "no image", engine: &fakeEngine{name: "anthropic"}, body: `{}`, code: http.StatusBadRequest, error: "No image provided"},
		{name: "empty body", engine: &fakeEngine{name: "anthropic"}, body: ``, code: http.StatusBadRequest, error: "No image provided"},
		{name: "bad json", engine: &fakeEngine{name: "anthropic"}, body: `{"imageData":`, code: http.StatusBadRequest, error: "Invalid request body"},
		{name: "bad base64", engine: &fakeEngine{name: "anthropic"}, body: `{"imageData":"!!!"}`, code: http.StatusBadRequest, error: "Invalid image data"},
		{name: "unknown engine", engine: &fakeEngine{name: "anthropic"}, body: `{"imageData":"aGVsbG8=","llm_name":"yandex"}`, code: http.StatusBadRequest},
		{
			name: "upstream", engine: &fakeEngine{name: "anthropic", err: errors.New("overloaded")},
			body: `{"imageData":"aGVsbG8="}`, code: http.StatusInternalServerError,
			error: "Failed to parse medications", details: "overloaded",
		},
		{
			name: "extraction", engine: &fakeEngine{name: "anthropic", reply: "I cannot read this image"},
			body: `{"imageData":"aGVsbG8="}`, code: http.StatusInternalServerError,
			error: "Failed to parse medications", details: "Could not parse response as JSON",
		},
		{
			name: "schema", engine: &fakeEngine{name: "anthropic", reply: `{"medications":[{"frequency":"daily"}]}`},
			body: `{"imageData":"aGVsbG8="}`, code: http.StatusInternalServerError,
			error: "Failed to parse medications",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, newHandle(tt.engine), tt.body)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			out := decode(t, rec)
			if tt.error != "" {
				assert.Equal(t, tt.error, out["error"])
			}
			if tt.details != "" {
				assert.Equal(t, tt.details, out["details"])
			}
			assert.NotContains(t, rec.Body.String(), "I cannot read this image")
		})
	}
}

func TestParse_MethodNotAllowed(t *testing.T) {
	f := &fakeEngine{name: "anthropic"}
	rec := httptest.NewRecorder()
	newHandle(f).Parse(rec, httptest.NewRequest(http.MethodGet, "/api/parse", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decode(t, rec)["error"])
	assert.Equal(t, 0, f.calls)
}

func TestParse_TooLarge(t *testing.T) {
	f := &fakeEngine{name: "anthropic", reply: okReply}
	big := strings.Repeat("A", 4096)
	rec := doJSON(t, newHandle(f), `{"imageData":"`+big+`"}`)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, f.calls)
}

func TestParse_EngineSelection(t *testing.T) {
	a := &fakeEngine{name: "anthropic", reply: `{"medications":[]}`}
	o := &fakeEngine{name: "openai", reply: `{"medications":[]}`}
	h := newHandle(a, o)

	rec := doJSON(t, h, `{"imageData":"aGVsbG8=","llm_name":"gpt"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, a.calls)
	assert.Equal(t, 1, o.calls)

	req := httptest.NewRequest(http.MethodPost, "/api/parse?llm_name=openai", strings.NewReader(`{"imageData":"aGVsbG8="}`))
	rec = httptest.NewRecorder()
	h.Parse(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, o.calls)
}

func TestParse_RequestIDEchoed(t *testing.T) {
	f := &fakeEngine{name: "anthropic", reply: `{"medications":[]}`}
	req := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(`{"imageData":"aGVsbG8="}`))
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	newHandle(f).Parse(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestDeadline(t *testing.T) {
	h := New(nil, nil, 1, 42*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/parse?timeoutSec=7", nil)
	assert.Equal(t, 7*time.Second, h.deadline(req))

	req.Header.Set("X-Request-Timeout", "3")
	assert.Equal(t, 3*time.Second, h.deadline(req))

	req = httptest.NewRequest(http.MethodPost, "/api/parse?timeoutSec=zero", nil)
	assert.Equal(t, 42*time.Second, h.deadline(req))

	req = httptest.NewRequest(http.MethodPost, "/api/parse", nil)
	req.Header.Set("X-Request-Timeout", "99999999999")
	assert.Equal(t, 42*time.Second, h.deadline(req))

	req = httptest.NewRequest(http.MethodPost, "/api/parse?timeoutSec=43", nil)
	assert.Equal(t, 42*time.Second, h.deadline(req))

	req = httptest.NewRequest(http.MethodPost, "/api/parse?timeoutSec=-5", nil)
	assert.Equal(t, 42*time.Second, h.deadline(req))
}
