package handle

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"medlist/api/internal/medlist"
)

const defaultTimeout = 180 * time.Second

type Handle struct {
	svc       *medlist.Service
	log       *zap.Logger
	maxUpload int64
	timeout   time.Duration
}

func New(svc *medlist.Service, log *zap.Logger, maxUpload int64, timeout time.Duration) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handle{
		svc:       svc,
		log:       log,
		maxUpload: maxUpload,
		timeout:   timeout,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
