// Package metrics exports protocol activity to Prometheus.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NethermindEth/agent-protocol/communication"
)

const defaultNamespace = "agent_protocol"

// Metrics counts delivered transactions and committed notifications,
// including the value units moving in and out of escrow.
type Metrics struct {
	txTotal       *prometheus.CounterVec
	txDuration    *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	volume        *prometheus.CounterVec
}

// New registers the protocol metrics on reg (the default registerer when nil).
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		txTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Delivered transactions by type and result code.",
		}, []string{"type", "code"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Execution time of delivered transactions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Committed notifications by event type.",
		}, []string{"event"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escrow_units_total",
			Help:      "Value units escrowed, delegated, released and refunded.",
		}, []string{"flow"}),
	}
	collectors := []prometheus.Collector{m.txTotal, m.txDuration, m.notifications, m.volume}
	for i, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, errors.Wrap(err, "register protocol metric")
			}
			collectors[i] = are.ExistingCollector
		}
	}
	if existing, ok := collectors[0].(*prometheus.CounterVec); ok {
		m.txTotal = existing
	}
	if existing, ok := collectors[1].(*prometheus.HistogramVec); ok {
		m.txDuration = existing
	}
	if existing, ok := collectors[2].(*prometheus.CounterVec); ok {
		m.notifications = existing
	}
	if existing, ok := collectors[3].(*prometheus.CounterVec); ok {
		m.volume = existing
	}
	return m, nil
}

// ObserveTx records one delivered transaction.
func (m *Metrics) ObserveTx(txType string, code uint32, took time.Duration) {
	if m == nil {
		return
	}
	m.txTotal.WithLabelValues(txType, strconv.FormatUint(uint64(code), 10)).Inc()
	m.txDuration.WithLabelValues(txType).Observe(took.Seconds())
}

// Notify counts a committed notification and the value it moved.
func (m *Metrics) Notify(_ context.Context, n communication.Notification) error {
	if m == nil {
		return nil
	}
	m.notifications.WithLabelValues(n.Type).Inc()
	switch ev := n.Payload.(type) {
	case communication.JobCreated:
		m.volume.WithLabelValues("escrowed").Add(float64(ev.Escrow))
	case communication.JobDelegated:
		m.volume.WithLabelValues("delegated").Add(float64(ev.Amount))
	case communication.PaymentReleased:
		flow := "released"
		if ev.AutoReleased {
			flow = "auto_released"
		}
		m.volume.WithLabelValues(flow).Add(float64(ev.Amount))
	case communication.JobCancelled:
		m.volume.WithLabelValues("refunded").Add(float64(ev.Refund))
	case communication.DisputeResolved:
		m.volume.WithLabelValues("refunded").Add(float64(ev.Refund))
	}
	return nil
}
