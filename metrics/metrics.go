package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scadabridge"

// Metrics holds the bridge collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	commands   *prometheus.CounterVec
	rampSteps  prometheus.Counter
	inbound    *prometheus.CounterVec
	batches    *prometheus.CounterVec
	queueDepth prometheus.Gauge
	setpoint   prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Operate requests by analog output index and command status.",
		}, []string{"index", "status"}),
		rampSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ramp_steps_total",
			Help:      "Setpoint values published by the ramp controller.",
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound bus messages by outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "point_batches_total",
			Help:      "Point update batches applied to the outstation database.",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatcher_queue_depth",
			Help:      "Units waiting on the dispatcher.",
		}),
		setpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "applied_setpoint_percent",
			Help:      "Production constraint setpoint last published to the plant.",
		}),
	}
	m.registry.MustRegister(
		m.commands,
		m.rampSteps,
		m.inbound,
		m.batches,
		m.queueDepth,
		m.setpoint,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CommandHandled(index uint16, status string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(strconv.Itoa(int(index)), status).Inc()
}

func (m *Metrics) RampStep() {
	if m == nil {
		return
	}
	m.rampSteps.Inc()
}

// InboundMessage counts a bus message; outcome is "applied", "unmapped" or "invalid".
func (m *Metrics) InboundMessage(outcome string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BatchApplied(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.batches.WithLabelValues(result).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetSetpoint(v float64) {
	if m == nil {
		return
	}
	m.setpoint.Set(v)
}
