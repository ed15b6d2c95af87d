package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.Request("http", "ok")
	m.Request("http", "ok")
	m.Stage("fenced")
	m.Upstream("anthropic", time.Second, nil)
	m.Upstream("anthropic", time.Second, errors.New("x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("http", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stages.WithLabelValues("fenced")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `medlist_parse_requests_total{adapter="http",outcome="ok"} 2`)
	assert.Contains(t, string(body), `medlist_upstream_duration_seconds_count{engine="anthropic",outcome="error"} 1`)
}

func TestMetrics_InitStages(t *testing.T) {
	m := New()
	m.InitStages("direct", "brace")
	assert.Equal(t, 2, testutil.CollectAndCount(m.stages))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.stages.WithLabelValues("brace")))
}
