package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records the order core's outcomes. A nil *OrderMetrics is a no-op.
type OrderMetrics struct {
	created      prometheus.Counter
	rejected     *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	released     prometheus.Counter
	notifyFailed prometheus.Counter
	checkout     prometheus.Histogram
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return nil
	}
	m := &OrderMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders persisted with stock reserved.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_operations_rejected_total",
			Help: "Order operations rejected, by operation and error code.",
		}, []string{"operation", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Applied order status transitions.",
		}, []string{"from", "to"}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_stock_releases_total",
			Help: "Cancellations that returned reserved stock.",
		}),
		notifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_notifications_failed_total",
			Help: "Order events that could not be handed to the notification gateway.",
		}),
		checkout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_checkout_duration_seconds",
			Help:    "Duration of successful checkouts.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.created, m.rejected, m.transitions, m.released, m.notifyFailed, m.checkout)
	return m
}

func (m *OrderMetrics) OrderCreated(d time.Duration) {
	if m == nil {
		return
	}
	m.created.Inc()
	m.checkout.Observe(d.Seconds())
}

func (m *OrderMetrics) Rejected(operation, code string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(operation, code).Inc()
}

func (m *OrderMetrics) Transitioned(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *OrderMetrics) StockReleased() {
	if m == nil {
		return
	}
	m.released.Inc()
}

func (m *OrderMetrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notifyFailed.Inc()
}
