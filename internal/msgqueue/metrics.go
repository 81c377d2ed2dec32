package msgqueue

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the message queue.
var (
	promEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgqueue_enqueued_total",
		Help: "Messages enqueued by channel",
	}, []string{"channel"})

	promDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgqueue_deliveries_total",
		Help: "Delivery attempts by channel and outcome",
	}, []string{"channel", "outcome"})

	promRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgqueue_retries_total",
		Help: "Retry reschedules by channel",
	}, []string{"channel"})

	promQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "msgqueue_depth",
		Help: "Messages waiting per channel",
	}, []string{"channel"})

	promDeliveryTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "msgqueue_delivery_seconds",
		Help:    "Provider delivery time",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
)

func init() {
	prometheus.MustRegister(promEnqueued)
	prometheus.MustRegister(promDeliveries)
	prometheus.MustRegister(promRetries)
	prometheus.MustRegister(promQueueDepth)
	prometheus.MustRegister(promDeliveryTime)
}
