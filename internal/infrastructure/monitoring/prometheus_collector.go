package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports the chat engine's instrumentation signals.
// It implements services.MetricsRecorder.
type PrometheusCollector struct {
	connectionsActive *prometheus.GaugeVec
	commandsTotal     *prometheus.CounterVec
	commandDuration   prometheus.Histogram
	messagesTotal     prometheus.Counter
	broadcastsTotal   *prometheus.CounterVec
	broadcastFanout   prometheus.Histogram
	rateLimitedTotal  *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parley_connections_active",
			Help: "Live client connections by protocol",
		}, []string{"protocol"}),

		commandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_commands_total",
			Help: "Chat engine commands processed, by command type and outcome",
		}, []string{"command", "status"}),

		commandDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_command_duration_seconds",
			Help:    "Time spent applying one chat engine command",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),

		messagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "parley_messages_total",
			Help: "Messages durably stored",
		}),

		broadcastsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_broadcasts_total",
			Help: "Events fanned out, by event type",
		}, []string{"event"}),

		broadcastFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_broadcast_fanout",
			Help:    "Connections reached by one broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		rateLimitedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_rate_limited_total",
			Help: "Requests rejected by rate limiting, by scope",
		}, []string{"scope"}),
	}
}

func (p *PrometheusCollector) CommandProcessed(command, status string, took time.Duration) {
	p.commandsTotal.WithLabelValues(command, status).Inc()
	p.commandDuration.Observe(took.Seconds())
}

func (p *PrometheusCollector) EventBroadcast(event string, fanout int) {
	p.broadcastsTotal.WithLabelValues(event).Inc()
	p.broadcastFanout.Observe(float64(fanout))
}

func (p *PrometheusCollector) MessageStored() {
	p.messagesTotal.Inc()
}

func (p *PrometheusCollector) ConnectionOpened(protocol string) {
	p.connectionsActive.WithLabelValues(protocol).Inc()
}

func (p *PrometheusCollector) ConnectionClosed(protocol string) {
	p.connectionsActive.WithLabelValues(protocol).Dec()
}

func (p *PrometheusCollector) RateLimited(scope string) {
	p.rateLimitedTotal.WithLabelValues(scope).Inc()
}
