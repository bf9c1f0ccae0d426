// Package metrics holds the checkout Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Checkout counts order and enrollment outcomes.
type Checkout struct {
	ordersCreated     *prometheus.CounterVec
	ordersCompleted   *prometheus.CounterVec
	ordersFailed      *prometheus.CounterVec
	enrollments       *prometheus.CounterVec
	webhookDuplicates prometheus.Counter
	deferredSynced    prometheus.Counter
}

// NewCheckout registers the collectors on reg.
func NewCheckout(reg prometheus.Registerer) *Checkout {
	f := promauto.With(reg)
	return &Checkout{
		ordersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_orders_created_total",
			Help: "Orders created, by path (free, gateway, webhook).",
		}, []string{"path"}),
		ordersCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_orders_completed_total",
			Help: "Orders moved to completed, by path.",
		}, []string{"path"}),
		ordersFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_orders_failed_total",
			Help: "Orders moved to failed, by reason.",
		}, []string{"reason"}),
		enrollments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_enrollments_total",
			Help: "Enrollment results, by outcome (new, reactivated, existing, error).",
		}, []string{"outcome"}),
		webhookDuplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "checkout_webhook_duplicates_total",
			Help: "Webhook deliveries for orders that already existed.",
		}),
		deferredSynced: f.NewCounter(prometheus.CounterOpts{
			Name: "checkout_deferred_synced_orders_total",
			Help: "Webhook orders enrolled by deferred sync.",
		}),
	}
}

// OrderCreated counts a new order on path.
func (m *Checkout) OrderCreated(path string)   { m.ordersCreated.WithLabelValues(path).Inc() }
func (m *Checkout) OrderCompleted(path string) { m.ordersCompleted.WithLabelValues(path).Inc() }
func (m *Checkout) OrderFailed(reason string)  { m.ordersFailed.WithLabelValues(reason).Inc() }
func (m *Checkout) Enrollment(outcome string)  { m.enrollments.WithLabelValues(outcome).Inc() }
func (m *Checkout) WebhookDuplicate()          { m.webhookDuplicates.Inc() }
func (m *Checkout) DeferredSynced(n int)       { m.deferredSynced.Add(float64(n)) }
