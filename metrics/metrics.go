// Registers:
//
//	execflow_queue_depth
//	execflow_messages_total{type}
//	execflow_duplicates_dropped_total
//	execflow_watchdog_fires_total
//	execflow_pause_total / execflow_resume_total
//	and go_*/process_* system metrics
//
// Exposes them on the configured listen address via the Prometheus HTTP
// handler.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	queueDepth        prometheus.Gauge
	messagesTotal     *prometheus.CounterVec
	duplicatesDropped prometheus.Counter
	watchdogFires     prometheus.Counter
	pauseTotal        prometheus.Counter
	resumeTotal       prometheus.Counter
)

// Init registers every collector exactly once and starts the HTTP server
// serving /metrics on addr (e.g. ":9090"). Safe to call multiple times; only
// the first call takes effect.
func Init(addr string) {
	once.Do(func() {
		queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execflow_queue_depth",
			Help: "Number of messages awaiting processing in the serial processor queue.",
		})
		messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "execflow_messages_total",
			Help: "Number of messages dispatched by the serial processor, by type.",
		}, []string{"type"})
		duplicatesDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execflow_duplicates_dropped_total",
			Help: "Number of trade messages dropped for a non-increasing id.",
		})
		watchdogFires = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execflow_watchdog_fires_total",
			Help: "Number of times the candle closure timer synthesized a close.",
		})
		pauseTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execflow_pause_total",
			Help: "Number of times processing was paused on socket loss.",
		})
		resumeTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execflow_resume_total",
			Help: "Number of times processing was resumed on socket restore.",
		})

		_ = prometheus.Register(queueDepth)
		_ = prometheus.Register(messagesTotal)
		_ = prometheus.Register(duplicatesDropped)
		_ = prometheus.Register(watchdogFires)
		_ = prometheus.Register(pauseTotal)
		_ = prometheus.Register(resumeTotal)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// SetQueueDepth records the processor's current queue depth.
func SetQueueDepth(n int) {
	if queueDepth != nil {
		queueDepth.Set(float64(n))
	}
}

// IncMessage increments the per-type message counter.
func IncMessage(msgType string) {
	if messagesTotal != nil {
		messagesTotal.WithLabelValues(msgType).Inc()
	}
}

// IncDuplicateDropped increments the duplicate-trade counter.
func IncDuplicateDropped() {
	if duplicatesDropped != nil {
		duplicatesDropped.Inc()
	}
}

// IncWatchdogFire increments the closure watchdog fire counter.
func IncWatchdogFire() {
	if watchdogFires != nil {
		watchdogFires.Inc()
	}
}

// IncPause increments the pause counter.
func IncPause() {
	if pauseTotal != nil {
		pauseTotal.Inc()
	}
}

// IncResume increments the resume counter.
func IncResume() {
	if resumeTotal != nil {
		resumeTotal.Inc()
	}
}

// StartQueueDepthSampler polls depthFn on interval until ctx is cancelled,
// publishing each reading to the queue depth gauge.
func StartQueueDepthSampler(ctx context.Context, interval time.Duration, depthFn func() int) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				SetQueueDepth(depthFn())
			}
		}
	}()
}
