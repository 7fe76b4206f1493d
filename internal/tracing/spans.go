package tracing

// Span names.
const (
	SpanLifecyclePrefix = "lifecycle.init."
	SpanStartup         = "lifecycle.startup"
	SpanDispose         = "lifecycle.dispose"
	SpanTreeLoad        = "tree.load"
	SpanHighlight       = "highlight.select"
	SpanItemsData       = "highlight.items_data"
	SpanUpload          = "api.upload"
	SpanDownload        = "api.download"
)

// Attribute keys.
const (
	AttrRegistryKey = "registry.key"
	AttrModelID     = "model.id"
	AttrLocalID     = "model.local_id"
	AttrCategory    = "ifc.category"
	AttrIDsCount    = "ids.count"
	AttrAttempt     = "retry.attempt"
	AttrBytes       = "payload.bytes"
)

// Event names.
const (
	EventRetry     = "retry"
	EventNarrowed  = "selection.narrowed"
	EventToolReady = "tool.ready"
)

// LifecycleSpan returns the span name for an initializer step.
func LifecycleSpan(step string) string { return SpanLifecyclePrefix + step }
