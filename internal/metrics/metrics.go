package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

// CheckoutMetrics implements the pipeline's metrics hooks on Prometheus
// collectors.
type CheckoutMetrics struct {
	PlaceOrders   *prometheus.CounterVec
	PlaceOrderDur prometheus.Histogram
	LockAcquires  *prometheus.CounterVec
	Unwinds       prometheus.Counter
	Requests      *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	m := &CheckoutMetrics{
		PlaceOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "place_order_total",
			Help:      "PlaceOrder calls by outcome.",
		}, []string{"outcome"}),
		PlaceOrderDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "place_order_duration_seconds",
			Help:      "PlaceOrder latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		LockAcquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_total",
			Help:      "Product lock acquisitions by result.",
		}, []string{"result"}),
		Unwinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unwind_total",
			Help:      "Checkout attempts whose reservations were given back.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
	}

	reg.MustRegister(m.PlaceOrders, m.PlaceOrderDur, m.LockAcquires, m.Unwinds, m.Requests)
	return m
}

func (m *CheckoutMetrics) PlaceOrderObserved(outcome string, elapsed time.Duration) {
	m.PlaceOrders.WithLabelValues(outcome).Inc()
	m.PlaceOrderDur.Observe(elapsed.Seconds())
}

func (m *CheckoutMetrics) LockAttempt(result string) {
	m.LockAcquires.WithLabelValues(result).Inc()
}

func (m *CheckoutMetrics) Unwound() {
	m.Unwinds.Inc()
}

func (m *CheckoutMetrics) RequestServed(handler string, status int) {
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
