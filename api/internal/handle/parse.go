package handle

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"medlist/api/internal/intake"
	"medlist/api/internal/medlist"
	"medlist/api/internal/ocr/types"
)

const (
	formFileField   = "image"
	formDataField   = "imageData"
	engineField     = "llm_name"
	requestIDHeader = "X-Request-ID"
)

var errBadBody = errors.New("Invalid request body")

type parseRequest struct {
	ImageData string `json:"imageData"`
	LLMName   string `json:"llm_name"`
}

// Parse serves POST /api/parse.
func (h *Handle) Parse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, reqID)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	in, llmName, err := h.readInput(r)
	if err != nil {
		if isTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error: "Image exceeds " + strconv.FormatInt(h.maxUpload, 10) + " bytes",
			})
			return
		}
		h.log.Debug("bad parse body", zap.String("request_id", reqID), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errBadBody.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	list, err := h.svc.Parse(ctx, medlist.Request{
		ID:      reqID,
		Adapter: "http",
		LLMName: llmName,
		Input:   in,
	})
	if err != nil {
		writeParseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handle) readInput(r *http.Request) (intake.Input, string, error) {
	llmName := r.URL.Query().Get(engineField)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case ct == "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return intake.Input{}, "", err
		}
		var in intake.Input
		file, hdr, err := r.FormFile(formFileField)
		switch {
		case err == nil:
			defer file.Close()
			b, err := io.ReadAll(file)
			if err != nil {
				return intake.Input{}, "", err
			}
			in.File, in.FileMIME = b, hdr.Header.Get("Content-Type")
		case !errors.Is(err, http.ErrMissingFile):
			return intake.Input{}, "", err
		}
		in.ImageData = r.FormValue(formDataField)
		if v := r.FormValue(engineField); v != "" {
			llmName = v
		}
		return in, llmName, nil

	case strings.HasPrefix(ct, "image/"):
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return intake.Input{}, "", err
		}
		return intake.Input{File: b, FileMIME: ct}, llmName, nil

	default:
		var req parseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return intake.Input{}, "", err
		}
		if req.LLMName != "" {
			llmName = req.LLMName
		}
		return intake.Input{ImageData: req.ImageData}, llmName, nil
	}
}

// multipart does not always wrap the reader error, hence the string check.
func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// deadline follows X-Request-Timeout, then ?timeoutSec=, then the configured
// default. A client may shorten the deadline but never extend it past the default.
func (h *Handle) deadline(r *http.Request) time.Duration {
	for _, ts := range []string{r.Header.Get("X-Request-Timeout"), r.URL.Query().Get("timeoutSec")} {
		v, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
		if err != nil || v <= 0 {
			continue
		}
		if v >= int64(h.timeout/time.Second) {
			return h.timeout
		}
		return time.Duration(v) * time.Second
	}
	return h.timeout
}

func writeParseError(w http.ResponseWriter, err error) {
	switch {
	case types.IsInvalidInput(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errors.Cause(err).Error()})
	case errors.Is(err, types.ErrUnknownEngine):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Failed to parse medications",
			Details: details(err),
		})
	}
}

// details never includes the raw model text.
func details(err error) string {
	var up *types.UpstreamError
	switch {
	case errors.As(err, &up):
		return up.Err.Error()
	case errors.Is(err, types.ErrExtraction):
		return types.ErrExtraction.Error()
	}
	return err.Error()
}
