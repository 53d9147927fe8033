// Package transport instruments outbound provider calls with prometheus
// metrics: call latency and error counts per method and path.
package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var _ http.RoundTripper = &RoundTripper{}
var _ prometheus.Collector = &RoundTripper{}

type RoundTripper struct {
	next    http.RoundTripper
	latency *prometheus.SummaryVec
	errors  *prometheus.CounterVec
}

// New wraps next with call metrics labeled with the provider name.
// Register the returned RoundTripper with a prometheus registry.
func New(next http.RoundTripper, provider string) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{
		next: next,
		latency: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:   "hvac",
			Subsystem:   "bridge",
			Name:        "api_latency",
			Help:        "latency of provider API calls",
			ConstLabels: map[string]string{"provider": provider},
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "hvac",
			Subsystem:   "bridge",
			Name:        "api_errors_total",
			Help:        "number of failed provider API calls",
			ConstLabels: map[string]string{"provider": provider},
		}, []string{"method", "path"}),
	}
}

func (r *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := r.next.RoundTrip(req)

	path := filterPath(req.URL.Path)
	r.latency.WithLabelValues(req.Method, path).Observe(time.Since(start).Seconds())
	var failed float64
	if err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest) {
		failed = 1
	}
	r.errors.WithLabelValues(req.Method, path).Add(failed)

	return resp, err
}

// filterPath caps label cardinality: zone and device ids in the path
// would otherwise create a time series per device.
func filterPath(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return "/" + strings.Join(parts, "/")
}

func (r *RoundTripper) Describe(ch chan<- *prometheus.Desc) {
	r.latency.Describe(ch)
	r.errors.Describe(ch)
}

func (r *RoundTripper) Collect(ch chan<- prometheus.Metric) {
	r.latency.Collect(ch)
	r.errors.Collect(ch)
}
