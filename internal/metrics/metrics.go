// Package metrics registers the Prometheus collectors shared by the worker
// agent and the control plane: package-level collectors, registered once
// in init, observed from the call sites that own the corresponding
// operation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatched = "unmatched"

var (
	// ImageFetchSeconds observes the duration of one rootfs download made by
	// EnsureRootfs. Cache hits are not observed.
	ImageFetchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rik_image_fetch_seconds",
		Help:    "Duration of a rootfs image fetch, in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// NetworkSetupSeconds observes the time from the start of
	// RuntimeNetwork.Init to the end of Preboot, which includes the machine
	// Create step that runs between them.
	NetworkSetupSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rik_network_setup_seconds",
		Help:    "Duration of host network fabric setup, in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// NetworkTeardownSeconds observes the duration of RuntimeNetwork.Destroy.
	NetworkTeardownSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rik_network_teardown_seconds",
		Help:    "Duration of host network fabric teardown, in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// VMBootSeconds observes the duration from Driver.Create to Driver.Start
	// returning.
	VMBootSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rik_vm_boot_seconds",
		Help:    "Duration of microVM creation and boot, in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// ActiveInstances tracks the number of instances currently Up.
	ActiveInstances = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rik_active_instances",
		Help: "Number of currently running workload instances.",
	})

	// InstancesTotal counts terminal outcomes by workload kind and status.
	InstancesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rik_instances_total",
		Help: "Total number of workload instances by kind and terminal status.",
	}, []string{"kind", "status"})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rik_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rik_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

func init() {
	prometheus.MustRegister(
		ImageFetchSeconds,
		NetworkSetupSeconds,
		NetworkTeardownSeconds,
		VMBootSeconds,
		ActiveInstances,
		InstancesTotal,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// Middleware records request count and duration for every HTTP request,
// keyed by the matched chi route pattern to avoid unbounded cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// Handler returns the Prometheus exposition HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
