// Package metrics exposes Prometheus collectors for the stockroom service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results recorded by ObserveCacheLookup.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

var (
	imageFetchTotal            *prometheus.CounterVec
	imageCacheTotal            *prometheus.CounterVec
	imageBytesTotal            prometheus.Counter
	stockAdjustmentsTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	hostWaitSeconds            prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		imageFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockroom_image_fetch_total",
				Help: "Product image fetch cycles, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		imageCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockroom_image_cache_total",
				Help: "Image cache lookups, labeled by hit or miss.",
			},
			[]string{"result"},
		)

		imageBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stockroom_image_bytes_total",
				Help: "Total bytes of product images written to storage.",
			},
		)

		stockAdjustmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockroom_stock_adjustments_total",
				Help: "Stock adjustments, labeled by direction.",
			},
			[]string{"direction"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "route"},
		)

		hostWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stockroom_supplier_wait_seconds",
				Help:    "Time outbound supplier requests waited on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveImageFetch counts one fetch cycle with the given outcome label.
func ObserveImageFetch(outcome string) {
	if imageFetchTotal == nil {
		return
	}
	imageFetchTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(result string) {
	if imageCacheTotal == nil {
		return
	}
	imageCacheTotal.WithLabelValues(result).Inc()
}

// AddImageBytes adds n stored image bytes.
func AddImageBytes(n int64) {
	if imageBytesTotal == nil || n <= 0 {
		return
	}
	imageBytesTotal.Add(float64(n))
}

// ObserveStockAdjustment counts a stock change by its sign.
func ObserveStockAdjustment(delta int) {
	if stockAdjustmentsTotal == nil || delta == 0 {
		return
	}
	direction := "in"
	if delta < 0 {
		direction = "out"
	}
	stockAdjustmentsTotal.WithLabelValues(direction).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveHostWait records time spent waiting on a per-host rate limiter.
func ObserveHostWait(d time.Duration) {
	if hostWaitSeconds == nil {
		return
	}
	hostWaitSeconds.Observe(d.Seconds())
}
