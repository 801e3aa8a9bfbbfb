// Package metrics exposes Prometheus metrics for the HTTP API, the dispatch
// engine and workflow runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AgentDesk/internal/tool"
)

const namespace = "agentdesk"

var (
	registry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"handler", "method", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"handler", "method"},
	)

	toolDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_dispatch_total",
			Help:      "Tool dispatches by tool and outcome kind.",
		},
		[]string{"tool", "outcome"},
	)

	toolDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_dispatch_duration_seconds",
			Help:      "Duration of tool dispatches including validation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	completionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Duration of completion service calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"stage", "status"},
	)

	workflowRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Finished workflow runs by status.",
		},
		[]string{"status"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_queue_depth",
			Help:      "Workflow runs waiting in the queue.",
		},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequestsTotal,
		httpRequestDuration,
		toolDispatchTotal,
		toolDispatchDuration,
		completionDuration,
		workflowRunsTotal,
		queueDepth,
	)
}

// Registry returns the registry all metrics are registered with.
func Registry() *prometheus.Registry { return registry }

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveToolDispatch records one dispatch and its outcome kind.
func ObserveToolDispatch(name tool.Name, outcome string, duration time.Duration) {
	label := string(name)
	if label == "" {
		label = "unknown"
	}
	toolDispatchTotal.WithLabelValues(label, outcome).Inc()
	toolDispatchDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveCompletion records a completion service call.
func ObserveCompletion(stage string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	completionDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// ObserveWorkflowRun counts a finished workflow run.
func ObserveWorkflowRun(status string) {
	workflowRunsTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth records the last sampled queue length.
func SetQueueDepth(n int64) {
	queueDepth.Set(float64(n))
}

// EngineObserver adapts the package level recorders to the engine observer interface.
type EngineObserver struct{}

func (EngineObserver) ToolDispatched(name tool.Name, outcome string, elapsed time.Duration) {
	ObserveToolDispatch(name, outcome, elapsed)
}

func (EngineObserver) CompletionFinished(stage string, elapsed time.Duration, err error) {
	ObserveCompletion(stage, elapsed, err)
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Instrument("metrics", Handler()))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
