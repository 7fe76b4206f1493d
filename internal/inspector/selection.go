package inspector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/bimview/internal/cachemanager"
	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/metrics"
	"github.com/zjrosen/bimview/internal/registry"
	"github.com/zjrosen/bimview/internal/spatialtree"
	"github.com/zjrosen/bimview/internal/tracing"
)

// DefaultItemTTL is how long fetched item data is reused.
const DefaultItemTTL = 5 * time.Minute

// Selection is a row picked in the tree panel.
type Selection struct {
	ModelID string
	Node    *spatialtree.Filtered
}

// TreeSource gives access to the loaded spatial trees.
type TreeSource interface {
	Tree(modelID string) (*spatialtree.Node, bool)
}

type itemKey string

func newItemKey(modelID string, localID int) itemKey {
	return itemKey(modelID + ":" + strconv.Itoa(localID))
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeTracer records selections as spans.
func WithBridgeTracer(t trace.Tracer) BridgeOption {
	return func(b *Bridge) { b.tracer = t }
}

// WithBridgeMetrics counts highlights and item cache lookups.
func WithBridgeMetrics(c *metrics.Collector) BridgeOption {
	return func(b *Bridge) { b.metrics = c }
}

// WithItemTTL sets how long item data stays cached.
func WithItemTTL(ttl time.Duration) BridgeOption {
	return func(b *Bridge) { b.ttl = ttl }
}

// Bridge turns tree selections into highlights.
type Bridge struct {
	registry *registry.Registry
	trees    TreeSource
	tracer   trace.Tracer
	metrics  *metrics.Collector
	ttl      time.Duration
	items    *cachemanager.InMemoryCacheManager[itemKey, engine.ItemData]
}

// NewBridge returns a bridge resolving services from reg. trees may be nil,
// in which case rows without an original node are used as shown.
func NewBridge(reg *registry.Registry, trees TreeSource, opts ...BridgeOption) *Bridge {
	b := &Bridge{registry: reg, trees: trees, ttl: DefaultItemTTL}
	for _, opt := range opts {
		opt(b)
	}
	b.items = cachemanager.NewInMemoryCacheManager[itemKey, engine.ItemData](
		"item-data", b.ttl,
		cachemanager.WithLookupObserver(b.metrics.CacheLookup),
	)
	return b
}

// Select highlights every element under the selected row and zooms to it,
// replacing the previous selection. A row with a category is narrowed to
// the elements whose type equals that category, unless none does.
//
// It returns the highlighted map, or nil when nothing was highlighted
// because the highlighter is missing or disabled or the row holds no ids.
func (b *Bridge) Select(ctx context.Context, sel Selection) (engine.ModelIDMap, error) {
	h, ok := registry.Lookup[engine.Highlighter](b.registry, registry.KeyHighlighter)
	if !ok || !h.Enabled() {
		log.Debug(log.CatHighlight, "Highlighter unavailable, ignoring selection", "model", sel.ModelID)
		return nil, nil
	}
	if sel.Node == nil {
		return nil, nil
	}

	node := b.resolve(sel)
	ids := spatialtree.IDSet{}
	spatialtree.CollectLocalIDs(node, ids)
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, span := tracing.Start(ctx, b.tracer, tracing.SpanHighlight,
		attribute.String(tracing.AttrModelID, sel.ModelID),
		attribute.String(tracing.AttrCategory, node.Category),
	)
	outcome := metrics.OutcomeSelected
	if node.Category != "" {
		if narrowed, ok := b.narrow(ctx, sel.ModelID, node.Category, ids); ok && len(narrowed) < len(ids) {
			span.AddEvent(tracing.EventNarrowed, trace.WithAttributes(
				attribute.Int(tracing.AttrIDsCount, len(narrowed)),
			))
			ids = narrowed
			outcome = metrics.OutcomeNarrowed
		}
	}
	span.SetAttributes(attribute.Int(tracing.AttrIDsCount, len(ids)))

	selection := engine.ModelIDMap{sel.ModelID: ids}
	err := h.HighlightByID(ctx, h.SelectName(), selection, engine.HighlightOptions{
		RemovePrevious:  true,
		ZoomToSelection: true,
	})
	tracing.End(span, err)
	if err != nil {
		b.metrics.Highlight(metrics.OutcomeFailed)
		return nil, fmt.Errorf("highlight %s: %w", node.DisplayName(), err)
	}
	b.metrics.Highlight(outcome)
	log.Debug(log.CatHighlight, "Selection highlighted",
		"model", sel.ModelID, "node", node.DisplayName(), "ids", len(ids), "outcome", outcome)
	return selection, nil
}

// resolve finds the complete node behind a possibly pruned row.
func (b *Bridge) resolve(sel Selection) *spatialtree.Node {
	if sel.Node.Original != nil {
		return sel.Node.Original
	}
	shown := sel.Node.Node()
	if b.trees != nil {
		if tree, ok := b.trees.Tree(sel.ModelID); ok {
			if n := spatialtree.FindNode(tree, shown); n != nil {
				return n
			}
		}
	}
	return shown
}

// narrow keeps the ids whose item type equals category. ok is false when
// the item data is unavailable or nothing matches.
func (b *Bridge) narrow(ctx context.Context, modelID, category string, ids spatialtree.IDSet) (spatialtree.IDSet, bool) {
	fragments, ok := registry.Lookup[engine.FragmentsManager](b.registry, registry.KeyFragmentsManager)
	if !ok {
		return nil, false
	}
	model, ok := fragments.Model(modelID)
	if !ok {
		return nil, false
	}

	sorted := ids.Sorted()
	keys := make([]itemKey, len(sorted))
	localIDs := make(map[itemKey]int, len(sorted))
	for i, id := range sorted {
		keys[i] = newItemKey(modelID, id)
		localIDs[keys[i]] = id
	}

	items := cachemanager.NewBatchReadThroughCache[itemKey, engine.ItemData](b.items,
		func(ctx context.Context, missing []itemKey) (map[itemKey]engine.ItemData, error) {
			req := make([]int, len(missing))
			for i, k := range missing {
				req[i] = localIDs[k]
			}
			data, err := model.ItemsData(ctx, req)
			if err != nil {
				return nil, err
			}
			out := make(map[itemKey]engine.ItemData, len(data))
			for _, d := range data {
				out[newItemKey(modelID, d.LocalID)] = d
			}
			return out, nil
		})

	data, err := items.GetMultiple(ctx, keys, b.ttl)
	if err != nil {
		log.ErrorErr(log.CatHighlight, "Fetching item data for type check failed", err,
			"model", modelID, "category", category)
		return nil, false
	}

	narrowed := spatialtree.IDSet{}
	for _, d := range data {
		if d.Type == category {
			narrowed.Add(d.LocalID)
		}
	}
	if len(narrowed) == 0 {
		return nil, false
	}
	return narrowed, true
}

// Clear removes the current selection.
func (b *Bridge) Clear(ctx context.Context) error {
	h, ok := registry.Lookup[engine.Highlighter](b.registry, registry.KeyHighlighter)
	if !ok {
		return nil
	}
	if err := h.Clear(ctx, h.SelectName()); err != nil {
		b.metrics.Highlight(metrics.OutcomeFailed)
		return fmt.Errorf("clear selection: %w", err)
	}
	b.metrics.Highlight(metrics.OutcomeCleared)
	return nil
}

// Forget drops cached item data, for when models are reloaded.
func (b *Bridge) Forget(ctx context.Context) {
	_ = b.items.Flush(ctx)
}
