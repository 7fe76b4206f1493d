// Package inspector holds the model-inspector logic behind the tree panel:
// loading each model's spatial tree, turning a tree selection into a
// highlight, and category visibility.
package inspector

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/metrics"
	"github.com/zjrosen/bimview/internal/pubsub"
	"github.com/zjrosen/bimview/internal/spatialtree"
	"github.com/zjrosen/bimview/internal/tracing"
)

// Retry defaults for spatial structure fetches.
const (
	DefaultMaxTries  = 10
	DefaultRetryStep = 200 * time.Millisecond
)

// ModelTree is the spatial tree of one loaded model.
type ModelTree struct {
	ModelID string
	Tree    *spatialtree.Node
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRetry overrides the attempt count and the linear backoff step.
func WithRetry(maxTries uint, step time.Duration) LoaderOption {
	return func(l *Loader) {
		l.maxTries = maxTries
		l.step = step
	}
}

// WithLoaderTracer records tree loads as spans.
func WithLoaderTracer(t trace.Tracer) LoaderOption {
	return func(l *Loader) { l.tracer = t }
}

// WithLoaderMetrics counts retried fetches.
func WithLoaderMetrics(c *metrics.Collector) LoaderOption {
	return func(l *Loader) { l.metrics = c }
}

// Loader reads the spatial tree of every loaded model and keeps the latest
// set. Subscribers receive an UpdatedEvent with the trees after each
// successful load.
type Loader struct {
	fragments engine.FragmentsManager
	maxTries  uint
	step      time.Duration
	tracer    trace.Tracer
	metrics   *metrics.Collector
	broker    *pubsub.Broker[[]ModelTree]

	mu    sync.RWMutex
	trees []ModelTree

	watchMu sync.Mutex
	stop    func()
}

// NewLoader returns a loader over fragments.
func NewLoader(fragments engine.FragmentsManager, opts ...LoaderOption) *Loader {
	l := &Loader{
		fragments: fragments,
		maxTries:  DefaultMaxTries,
		step:      DefaultRetryStep,
		broker:    pubsub.NewBroker[[]ModelTree](),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadModelTree flushes the fragments core and reads model's spatial
// structure, retrying with linear backoff.
func (l *Loader) LoadModelTree(ctx context.Context, model engine.Model) (*spatialtree.Node, error) {
	ctx, span := tracing.Start(ctx, l.tracer, tracing.SpanTreeLoad, attribute.String(tracing.AttrModelID, model.ID()))
	attempt := 0
	tree, err := backoff.Retry(ctx, func() (*spatialtree.Node, error) {
		attempt++
		if err := l.fragments.Update(ctx, true); err != nil {
			return nil, err
		}
		return model.SpatialStructure(ctx)
	},
		backoff.WithBackOff(&linearBackOff{step: l.step}),
		backoff.WithMaxTries(l.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			l.metrics.TreeRetry()
			span.AddEvent(tracing.EventRetry, trace.WithAttributes(attribute.Int(tracing.AttrAttempt, attempt)))
			log.Debug(log.CatTree, "Spatial structure fetch failed, retrying",
				"model", model.ID(), "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	tracing.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("load spatial structure of %s after %d attempts: %w", model.ID(), attempt, err)
	}
	return tree, nil
}

// LoadTrees loads the tree of every model in load order. Models that keep
// failing are left out. The stored set is replaced only when at least one
// tree loaded.
func (l *Loader) LoadTrees(ctx context.Context) []ModelTree {
	var trees []ModelTree
	for _, model := range l.fragments.Models() {
		tree, err := l.LoadModelTree(ctx, model)
		if err != nil {
			log.ErrorErr(log.CatTree, "Giving up on model tree", err, "model", model.ID())
			continue
		}
		trees = append(trees, ModelTree{ModelID: model.ID(), Tree: tree})
	}
	if len(trees) == 0 {
		return nil
	}

	l.mu.Lock()
	l.trees = trees
	l.mu.Unlock()
	log.Debug(log.CatTree, "Model trees loaded", "models", len(trees))
	l.broker.Publish(pubsub.UpdatedEvent, slices.Clone(trees))
	return trees
}

// Trees returns the last loaded set.
func (l *Loader) Trees() []ModelTree {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.trees)
}

// Tree returns the loaded tree of modelID.
func (l *Loader) Tree(modelID string) (*spatialtree.Node, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, mt := range l.trees {
		if mt.ModelID == modelID {
			return mt.Tree, true
		}
	}
	return nil, false
}

// Subscribe delivers every loaded set.
func (l *Loader) Subscribe(ctx context.Context) <-chan pubsub.Event[[]ModelTree] {
	return l.broker.Subscribe(ctx)
}

// Watch loads the trees now and again whenever a model is set, until ctx
// is done or Close is called. Reloads requested while one is running
// collapse into one.
func (l *Loader) Watch(ctx context.Context) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.stop != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	kick := make(chan struct{}, 1)
	request := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
	remove := l.fragments.OnModelSet().Add(func(engine.Model) { request() })
	request()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
				l.LoadTrees(ctx)
			}
		}
	}()

	l.stop = func() {
		remove()
		cancel()
		<-done
	}
}

// Close stops watching and ends every subscription.
func (l *Loader) Close() {
	l.watchMu.Lock()
	stop := l.stop
	l.stop = nil
	l.watchMu.Unlock()
	if stop != nil {
		stop()
	}
	l.broker.Close()
}
