// Package engine declares the contract bimview consumes from a 3D BIM
// engine: world (scene, camera, raycaster), fragments manager and models,
// and the interactive tools built on them.
//
// Geometry, raycasting internals and fragment decoding live behind these
// interfaces. memengine provides an in-process implementation.
package engine

import (
	"context"
	"errors"

	"github.com/zjrosen/bimview/internal/spatialtree"
)

var (
	// ErrModelNotFound is returned when a model id is not loaded.
	ErrModelNotFound = errors.New("engine: model not found")
	// ErrNotInitialized is returned by tools used before Setup/Init.
	ErrNotInitialized = errors.New("engine: not initialized")
	// ErrDisposed is returned by operations on a disposed object.
	ErrDisposed = errors.New("engine: disposed")
)

// Color is a CSS-style hex colour, e.g. "#BCF124".
type Color string

// Engine is the root component container. It creates worlds and hands out
// the singleton tools, mirroring a component registry.
type Engine interface {
	// CreateWorld builds a scene, camera and renderer triple.
	CreateWorld(ctx context.Context) (World, error)
	// Init runs the one-time engine bootstrap (render loop start).
	Init(ctx context.Context) error

	Fragments() FragmentsManager
	AreaMeasurement() Measurer
	LengthMeasurement() Measurer
	VolumeMeasurement() Measurer
	Highlighter() Highlighter
	Clipper() Clipper
	Views() Views

	Dispose()
}

// World groups the scene graph, the camera and the raycaster of one view.
type World interface {
	Scene() Scene
	Camera() Camera
	Raycaster() Raycaster
	// OnCameraChanged fires when the active camera is swapped.
	OnCameraChanged() *Signal[Camera]
	Dispose()
}

// Scene is the scene graph root.
type Scene interface {
	AddModel(m Model)
	RemoveModel(m Model)
	// AddMarker adds a flat disc at pos oriented to face facing.
	AddMarker(pos Vec3, radius float64, color Color, facing Vec3) Marker
	Markers() []Marker
}

// Marker is a transient mesh owned by whoever created it.
type Marker interface {
	Position() Vec3
	// Remove detaches the marker from the scene and releases it.
	Remove()
}

// Camera is the orbit camera controller.
type Camera interface {
	SetLookAt(ctx context.Context, position, target Vec3) error
	// SetTarget moves the orbit target, keeping the position.
	SetTarget(ctx context.Context, target Vec3) error
	FitToSphere(ctx context.Context, s Sphere) error
	Position() Vec3
	Target() Vec3
	// OnRest fires when camera motion settles.
	OnRest() *Signal[struct{}]
}

// Hit is a raycast intersection.
type Hit struct {
	Point   Vec3
	ModelID string
	LocalID int
}

// Raycaster casts a ray through the current pointer position.
type Raycaster interface {
	// CastRay returns nil, nil when nothing is under the pointer.
	CastRay(ctx context.Context) (*Hit, error)
}

// Aimer is implemented by raycasters whose pointer can be placed on a
// model element programmatically (there is no mouse in a terminal).
type Aimer interface {
	AimAt(modelID string, localID int) error
	ClearAim()
}

// FragmentsManager owns the loaded models and the fragment worker.
type FragmentsManager interface {
	// Init starts the fragment worker from a local script URL.
	Init(workerURL string) error
	WorkerURL() string
	// Update flushes pending geometry/visibility work.
	Update(ctx context.Context, force bool) error
	Load(ctx context.Context, modelID string, data []byte) (Model, error)
	Unload(modelID string) error
	Model(id string) (Model, bool)
	Models() []Model
	// OnModelSet fires after a model is loaded.
	OnModelSet() *Signal[Model]
	Dispose()
}

// ItemData is the attribute set of one element.
type ItemData struct {
	LocalID    int               `cbor:"id" json:"id"`
	Type       string            `cbor:"type" json:"type"`
	Name       string            `cbor:"name,omitempty" json:"name,omitempty"`
	Attributes map[string]string `cbor:"attrs,omitempty" json:"attributes,omitempty"`
}

// Model is one loaded fragments model.
type Model interface {
	ID() string
	UseCamera(c Camera)
	SpatialStructure(ctx context.Context) (*spatialtree.Node, error)
	ItemsData(ctx context.Context, ids []int) ([]ItemData, error)
	// Bounds returns the combined bounding box of ids.
	Bounds(ctx context.Context, ids []int) (Box, error)
	// Categories returns the categories of elements with geometry.
	Categories(ctx context.Context) ([]string, error)
	// ItemsOfCategories returns ids whose category matches any of the
	// given regular expressions.
	ItemsOfCategories(ctx context.Context, patterns []string) (spatialtree.IDSet, error)
	SetVisible(ctx context.Context, ids []int, visible bool) error
	ResetVisible(ctx context.Context) error
	Hidden() spatialtree.IDSet
}

// ModelIDMap maps a model id to a set of local ids; the unit of selection.
type ModelIDMap map[string]spatialtree.IDSet

// Count returns the total number of ids across models.
func (m ModelIDMap) Count() int {
	n := 0
	for _, ids := range m {
		n += len(ids)
	}
	return n
}

// MeasureMode selects how a measurer builds its shape.
type MeasureMode string

const (
	ModeFree   MeasureMode = "free"
	ModeSquare MeasureMode = "square"
	ModeEdge   MeasureMode = "edge"
)

// MeasureKind tells which measurer produced a measurement.
type MeasureKind string

const (
	KindArea   MeasureKind = "area"
	KindLength MeasureKind = "length"
	KindVolume MeasureKind = "volume"
)

// Measurement is a finished measurement.
type Measurement struct {
	ID     string
	Kind   MeasureKind
	Points []Vec3
	Value  float64
	Bounds Box
}

// Center returns the midpoint of the measurement's points.
func (m Measurement) Center() Vec3 {
	return m.Bounds.Center()
}

// Measurer is an area, length or volume measurement tool.
type Measurer interface {
	Setup(world World, color Color, mode MeasureMode)
	Enabled() bool
	SetEnabled(enabled bool)
	Visible() bool
	SetVisible(visible bool)
	Mode() MeasureMode
	// Create adds a point at the pointer, or finishes a two-point shape.
	Create(ctx context.Context) error
	// EndCreation completes the measurement in progress.
	EndCreation() error
	// Delete removes the measurement under the pointer, or the last one.
	Delete(ctx context.Context) error
	Clear()
	List() []Measurement
	OnAdded() *Signal[Measurement]
	Dispose()
}

// SelectStyle describes the selection highlight material.
type SelectStyle struct {
	Color       Color
	Opacity     float64
	Transparent bool
}

// HighlightOptions controls HighlightByID.
type HighlightOptions struct {
	// RemovePrevious replaces the current selection instead of adding.
	RemovePrevious bool
	// ZoomToSelection frames the camera on the result.
	ZoomToSelection bool
}

// Highlighter colours selected elements.
type Highlighter interface {
	Setup(world World, style SelectStyle)
	Enabled() bool
	SetEnabled(enabled bool)
	SetZoomToSelection(zoom bool)
	// SelectName is the style name used for user selection.
	SelectName() string
	HighlightByID(ctx context.Context, name string, ids ModelIDMap, opts HighlightOptions) error
	Clear(ctx context.Context, name string) error
	Selection(name string) ModelIDMap
	OnHighlight() *Signal[ModelIDMap]
	OnClear() *Signal[struct{}]
	Dispose()
}

// Plane is a clipping plane.
type Plane struct {
	ID      string
	Point   Vec3
	Normal  Vec3
	Enabled bool
}

// Clipper manages clipping planes.
type Clipper interface {
	Setup(world World)
	Enabled() bool
	SetEnabled(enabled bool)
	Visible() bool
	SetVisible(visible bool)
	// Create adds a plane at the pointer facing the camera.
	Create(ctx context.Context) (*Plane, error)
	// Delete removes the plane nearest the pointer, or the last one.
	Delete(ctx context.Context) error
	DeleteAll()
	// ToggleAll flips Enabled on every plane.
	ToggleAll()
	List() []Plane
	Dispose()
}

// View is a 2D section view.
type View struct {
	Name    string
	PlaneID string
	Point   Vec3
	Normal  Vec3
}

// Views manages 2D section views.
type Views interface {
	Setup(world World)
	Enabled() bool
	SetEnabled(enabled bool)
	// Create adds a view at the pointer facing the camera.
	Create(ctx context.Context) (*View, error)
	CreateFromPlane(p Plane) (*View, error)
	Open(name string) error
	Close() error
	Active() string
	Delete(name string)
	List() []View
	OnChanged() *Signal[struct{}]
	Dispose()
}
