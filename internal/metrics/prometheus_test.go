package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncDaemonCommand("press", true)
	r.IncDaemonCommand("press", false)
	r.IncDaemonCommand("press", true)
	r.IncReconnect(false)
	r.SetDaemonConnected(true)
	r.IncEvent("touch")
	r.IncCircleShown()
	r.IncJitterApplied()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.daemonCommands.WithLabelValues("press", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.daemonCommands.WithLabelValues("press", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconnects.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.daemonConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("touch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.circleShown))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jitterApplied))

	r.SetDaemonConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.daemonConnected))
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)
	r.IncCircleShown()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fodcircle_circle_shown_total 1")
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncDaemonCommand("show", true)
	r.SetDaemonConnected(true)
}
