package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fodcircle"

// PrometheusRecorder implements Recorder on top of client_golang collectors.
type PrometheusRecorder struct {
	daemonCommands  *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	daemonConnected prometheus.Gauge
	events          *prometheus.CounterVec
	circleShown     prometheus.Counter
	jitterApplied   prometheus.Counter
}

// NewPrometheusRecorder registers the collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		daemonCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daemon_commands_total",
			Help:      "Commands dispatched to the sensor daemon, by command and result.",
		}, []string{"command", "result"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daemon_reconnects_total",
			Help:      "Attempts to acquire a daemon handle, by result.",
		}, []string{"result"}),
		daemonConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daemon_connected",
			Help:      "1 while a live daemon handle is held.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinator_events_total",
			Help:      "Events applied by the overlay coordinator, by kind.",
		}, []string{"kind"}),
		circleShown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circle_shown_total",
			Help:      "Times the pressed circle was shown.",
		}),
		jitterApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "burnin_offsets_applied_total",
			Help:      "Burn-in offsets applied to the overlay position.",
		}),
	}

	reg.MustRegister(r.daemonCommands, r.reconnects, r.daemonConnected, r.events, r.circleShown, r.jitterApplied)
	return r
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (r *PrometheusRecorder) IncDaemonCommand(command string, ok bool) {
	r.daemonCommands.WithLabelValues(command, result(ok)).Inc()
}

func (r *PrometheusRecorder) IncReconnect(ok bool) {
	r.reconnects.WithLabelValues(result(ok)).Inc()
}

func (r *PrometheusRecorder) SetDaemonConnected(connected bool) {
	if connected {
		r.daemonConnected.Set(1)
		return
	}
	r.daemonConnected.Set(0)
}

func (r *PrometheusRecorder) IncEvent(kind string) {
	r.events.WithLabelValues(kind).Inc()
}

func (r *PrometheusRecorder) IncCircleShown() { r.circleShown.Inc() }

func (r *PrometheusRecorder) IncJitterApplied() { r.jitterApplied.Inc() }

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
