package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticks_total",
			Help: "Total simulation ticks processed by network.",
		},
		[]string{"network"},
	)
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total completed deliveries by network.",
		},
		[]string{"network"},
	)
	deliveryMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_misses_total",
			Help: "Total delivery misses (no feasible route) by network.",
		},
		[]string{"network"},
	)
	snapshotsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshots_dropped_total",
			Help: "Total snapshots dropped from full subscriber queues.",
		},
		[]string{"network"},
	)
	activeSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_subscribers",
			Help: "Currently attached snapshot subscribers by network.",
		},
		[]string{"network"},
	)
	flowComputeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flow_compute_seconds",
			Help:    "Max-flow computation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(httpRequests, httpLatency, ticksTotal, deliveriesTotal, deliveryMisses, snapshotsDropped, activeSubscribers, flowComputeLatency, influxWriteFailures, asynqQueueDepth)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func IncTick(network string) {
	ticksTotal.WithLabelValues(network).Inc()
}

func AddDeliveries(network string, n int) {
	deliveriesTotal.WithLabelValues(network).Add(float64(n))
}

func IncDeliveryMiss(network string) {
	deliveryMisses.WithLabelValues(network).Inc()
}

func IncSnapshotDropped(network string) {
	snapshotsDropped.WithLabelValues(network).Inc()
}

func SetActiveSubscribers(network string, n int) {
	activeSubscribers.WithLabelValues(network).Set(float64(n))
}

func ObserveFlowCompute(d time.Duration) {
	flowComputeLatency.Observe(d.Seconds())
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
