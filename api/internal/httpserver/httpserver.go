package httpserver

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const shutdownGrace = 10 * time.Second

// Routes carries the handlers a server process exposes. Nil entries are not mounted.
type Routes struct {
	Parse     http.HandlerFunc
	Metrics   http.Handler
	Webhook   http.Handler
	WebhookAt string
	StaticDir string
	RootBody  string
}

// NewMux mounts /healthz, /metrics, /api/parse and the root.
func NewMux(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if rt.Metrics != nil {
		mux.Handle("/metrics", rt.Metrics)
	}
	if rt.Parse != nil {
		mux.HandleFunc("/api/parse", rt.Parse)
	}
	if rt.Webhook != nil && rt.WebhookAt != "" {
		mux.Handle(rt.WebhookAt, rt.Webhook)
	}

	if fi, err := os.Stat(rt.StaticDir); rt.StaticDir != "" && err == nil && fi.IsDir() {
		mux.Handle("/", http.FileServer(http.Dir(rt.StaticDir)))
		return mux
	}
	body := rt.RootBody
	if body == "" {
		body = "medlist"
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	return mux
}

type statusWriter struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// AccessLog logs one line per request. /healthz and /metrics are logged at debug.
func AccessLog(log *zap.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.code == 0 {
			sw.code = http.StatusOK
		}

		lvl := log.Info
		switch {
		case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
			lvl = log.Debug
		case sw.code >= http.StatusInternalServerError:
			lvl = log.Warn
		}
		lvl("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.code),
			zap.Int("bytes", sw.bytes),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", sw.Header().Get("X-Request-ID")),
		)
	})
}

// Serve runs h on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return ServeListener(ctx, ln, h, log)
}

func ServeListener(ctx context.Context, ln net.Listener, h http.Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	// Request contexts are not derived from ctx: in-flight requests drain
	// within shutdownGrace instead of being cancelled by the signal.
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	log.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	log.Info("shutting down", zap.String("addr", ln.Addr().String()))
	if err := srv.Shutdown(shutCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
