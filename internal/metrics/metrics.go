// Package metrics exposes the agent's operational counters as prometheus
// collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds all agent metric collectors
type Collectors struct {
	SessionsActive    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDeleted   prometheus.Counter
	MessagesIn        prometheus.Counter
	MessagesOut       prometheus.Counter
	Submessages       *prometheus.CounterVec
	Retransmissions   prometheus.Counter
	AckNacksSent      prometheus.Counter
	HeartbeatsSent    prometheus.Counter
	FragmentsRebuilt  prometheus.Counter
	ReadJobsActive    prometheus.Gauge
	MalformedMessages prometheus.Counter
}

// New initializes and registers the agent collectors. Registration is
// idempotent so tests can build several agents in one process.
func New(namespace string) *Collectors {
	register := func(c prometheus.Collector) prometheus.Collector {
		if err := prometheus.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				return are.ExistingCollector
			}
			return c
		}
		return c
	}

	m := &Collectors{}
	m.SessionsActive = register(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live proxy client sessions",
	})).(prometheus.Gauge)

	m.SessionsCreated = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total number of sessions established",
	})).(prometheus.Counter)

	m.SessionsDeleted = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_deleted_total",
		Help:      "Total number of sessions torn down",
	})).(prometheus.Counter)

	m.MessagesIn = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_in_total",
		Help:      "Total number of received messages",
	})).(prometheus.Counter)

	m.MessagesOut = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_out_total",
		Help:      "Total number of transmitted messages",
	})).(prometheus.Counter)

	m.Submessages = register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submessages_total",
		Help:      "Dispatched submessages by kind",
	}, []string{"kind"})).(*prometheus.CounterVec)

	m.Retransmissions = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retransmissions_total",
		Help:      "Messages retransmitted after an ACKNACK",
	})).(prometheus.Counter)

	m.AckNacksSent = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "acknacks_sent_total",
		Help:      "ACKNACK submessages emitted",
	})).(prometheus.Counter)

	m.HeartbeatsSent = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "heartbeats_sent_total",
		Help:      "HEARTBEAT submessages emitted",
	})).(prometheus.Counter)

	m.FragmentsRebuilt = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fragments_reassembled_total",
		Help:      "Fragmented submessages reassembled",
	})).(prometheus.Counter)

	m.ReadJobsActive = register(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "read_jobs_active",
		Help:      "Read jobs currently serving subscriptions",
	})).(prometheus.Gauge)

	m.MalformedMessages = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_messages_total",
		Help:      "Messages discarded due to parse errors",
	})).(prometheus.Counter)

	return m
}
