package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paysync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route.",
		},
		[]string{"route"},
	)

	syncJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paysync",
			Name:      "sync_jobs_total",
			Help:      "Processed sync jobs by type and result.",
		},
		[]string{"job_type", "result"},
	)

	dispatchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paysync",
			Name:      "dispatch_items_total",
			Help:      "Dispatched work items by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncJobs, dispatchItems)
	})
}

// IncHTTP increments the request counter for a route label.
func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

// IncJob increments the sync job counter.
func IncJob(jobType, result string) {
	syncJobs.WithLabelValues(jobType, result).Inc()
}

// AddDispatchItems adds n to the item counter for a result label.
func AddDispatchItems(result string, n int) {
	if n <= 0 {
		return
	}
	dispatchItems.WithLabelValues(result).Add(float64(n))
}
