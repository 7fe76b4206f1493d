// Package metrics exposes bimview's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Highlight outcomes.
const (
	OutcomeSelected = "selected"
	OutcomeNarrowed = "narrowed"
	OutcomeCleared  = "cleared"
	OutcomeFailed   = "failed"
)

// Collector bundles the viewer's metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Services     prometheus.Gauge
	InitDuration *prometheus.HistogramVec
	InitFailures *prometheus.CounterVec
	Highlights   *prometheus.CounterVec
	TreeRetries  prometheus.Counter
	Dropped      *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
}

// New registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns the
// existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Services, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bimview_registered_services",
		Help: "Services currently held by the session registry.",
	}), "bimview_registered_services"); err != nil {
		return nil, err
	}
	if c.InitDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bimview_init_duration_seconds",
		Help:    "Duration of viewer initializer steps.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"step"}), "bimview_init_duration_seconds"); err != nil {
		return nil, err
	}
	if c.InitFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bimview_init_failures_total",
		Help: "Initializer steps that returned an error.",
	}, []string{"step"}), "bimview_init_failures_total"); err != nil {
		return nil, err
	}
	if c.Highlights, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bimview_highlights_total",
		Help: "Tree selections forwarded to the highlighter, by outcome.",
	}, []string{"outcome"}), "bimview_highlights_total"); err != nil {
		return nil, err
	}
	if c.TreeRetries, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bimview_tree_load_retries_total",
		Help: "Spatial structure fetches retried after a failure.",
	}), "bimview_tree_load_retries_total"); err != nil {
		return nil, err
	}
	if c.Dropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bimview_pubsub_dropped_total",
		Help: "Events dropped because a subscriber buffer was full.",
	}, []string{"topic"}), "bimview_pubsub_dropped_total"); err != nil {
		return nil, err
	}
	if c.CacheLookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bimview_item_cache_lookups_total",
		Help: "Item data cache lookups, by result.",
	}, []string{"result"}), "bimview_item_cache_lookups_total"); err != nil {
		return nil, err
	}
	return c, nil
}

// SetServices records the registry size.
func (c *Collector) SetServices(n int) {
	if c == nil {
		return
	}
	c.Services.Set(float64(n))
}

// ObserveInit records one initializer step.
func (c *Collector) ObserveInit(step string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.InitDuration.WithLabelValues(step).Observe(d.Seconds())
	if err != nil {
		c.InitFailures.WithLabelValues(step).Inc()
	}
}

// Highlight counts a selection outcome.
func (c *Collector) Highlight(outcome string) {
	if c == nil {
		return
	}
	c.Highlights.WithLabelValues(outcome).Inc()
}

// TreeRetry counts a retried spatial structure fetch.
func (c *Collector) TreeRetry() {
	if c == nil {
		return
	}
	c.TreeRetries.Inc()
}

// Drop counts an event dropped on topic.
func (c *Collector) Drop(topic string) {
	if c == nil {
		return
	}
	c.Dropped.WithLabelValues(topic).Inc()
}

// CacheLookup counts an item cache hit or miss.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return c, nil
}
