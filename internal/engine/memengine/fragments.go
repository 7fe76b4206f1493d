package memengine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/spatialtree"
)

// FragmentsManager keeps decoded models in load order.
type FragmentsManager struct {
	mu        sync.Mutex
	workerURL string
	models    []*Model
	updates   int
	disposed  bool

	modelSet engine.Signal[engine.Model]
}

func (f *FragmentsManager) Init(workerURL string) error {
	if workerURL == "" {
		return errors.New("fragments init: empty worker url")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return engine.ErrDisposed
	}
	f.workerURL = workerURL
	return nil
}

func (f *FragmentsManager) WorkerURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workerURL
}

func (f *FragmentsManager) Update(ctx context.Context, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	return nil
}

// Updates returns how many times Update ran.
func (f *FragmentsManager) Updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

// Load decodes a snapshot into a model, replacing any model with the same
// id, and fires OnModelSet.
func (f *FragmentsManager) Load(ctx context.Context, modelID string, data []byte) (engine.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if modelID == "" {
		return nil, errors.New("load: empty model id")
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", modelID, err)
	}

	f.mu.Lock()
	if f.workerURL == "" {
		f.mu.Unlock()
		return nil, fmt.Errorf("load %s: %w", modelID, engine.ErrNotInitialized)
	}
	m := newModel(modelID, snap)
	f.models = slices.DeleteFunc(f.models, func(x *Model) bool { return x.id == modelID })
	f.models = append(f.models, m)
	f.mu.Unlock()

	f.modelSet.Trigger(m)
	return m, nil
}

func (f *FragmentsManager) Unload(modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.models)
	f.models = slices.DeleteFunc(f.models, func(x *Model) bool { return x.id == modelID })
	if len(f.models) == n {
		return fmt.Errorf("unload %s: %w", modelID, engine.ErrModelNotFound)
	}
	return nil
}

func (f *FragmentsManager) Model(id string) (engine.Model, bool) {
	m, ok := f.model(id)
	if !ok {
		return nil, false
	}
	return m, true
}

func (f *FragmentsManager) model(id string) (*Model, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.models {
		if m.id == id {
			return m, true
		}
	}
	return nil, false
}

func (f *FragmentsManager) Models() []engine.Model {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Model, len(f.models))
	for i, m := range f.models {
		out[i] = m
	}
	return out
}

func (f *FragmentsManager) OnModelSet() *engine.Signal[engine.Model] { return &f.modelSet }

func (f *FragmentsManager) Dispose() {
	f.mu.Lock()
	f.disposed = true
	f.models = nil
	f.workerURL = ""
	f.mu.Unlock()
	f.modelSet.Reset()
}

// Model is a decoded snapshot.
type Model struct {
	id       string
	tree     *spatialtree.Node
	elements map[int]Element

	mu             sync.Mutex
	camera         engine.Camera
	hidden         spatialtree.IDSet
	spatialFails   int
	itemsDataFails int
}

func newModel(id string, s *Snapshot) *Model {
	m := &Model{
		id:       id,
		tree:     s.Tree,
		elements: make(map[int]Element, len(s.Elements)),
		hidden:   spatialtree.IDSet{},
	}
	for _, e := range s.Elements {
		m.elements[e.LocalID] = e
	}
	return m
}

func (m *Model) ID() string { return m.id }

func (m *Model) UseCamera(c engine.Camera) {
	m.mu.Lock()
	m.camera = c
	m.mu.Unlock()
}

// Camera returns the camera last passed to UseCamera.
func (m *Model) Camera() engine.Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

// FailSpatialStructure makes the next n SpatialStructure calls fail, as an
// engine still streaming tiles would.
func (m *Model) FailSpatialStructure(n int) {
	m.mu.Lock()
	m.spatialFails = n
	m.mu.Unlock()
}

// FailItemsData makes the next n ItemsData calls fail.
func (m *Model) FailItemsData(n int) {
	m.mu.Lock()
	m.itemsDataFails = n
	m.mu.Unlock()
}

var errNotReady = errors.New("memengine: model not ready")

func (m *Model) SpatialStructure(ctx context.Context) (*spatialtree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.spatialFails > 0 {
		m.spatialFails--
		m.mu.Unlock()
		return nil, fmt.Errorf("spatial structure of %s: %w", m.id, errNotReady)
	}
	m.mu.Unlock()
	return cloneTree(m.tree), nil
}

func cloneTree(n *spatialtree.Node) *spatialtree.Node {
	if n == nil {
		return nil
	}
	c := &spatialtree.Node{Category: n.Category}
	if n.LocalID != nil {
		c.LocalID = spatialtree.ID(*n.LocalID)
	}
	for _, child := range n.Children {
		c.Children = append(c.Children, cloneTree(child))
	}
	return c
}

// ItemsData returns data for the known ids, in request order. Unknown ids
// are skipped.
func (m *Model) ItemsData(ctx context.Context, ids []int) ([]engine.ItemData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.itemsDataFails > 0 {
		m.itemsDataFails--
		m.mu.Unlock()
		return nil, fmt.Errorf("items data of %s: %w", m.id, errNotReady)
	}
	m.mu.Unlock()

	out := make([]engine.ItemData, 0, len(ids))
	for _, id := range ids {
		e, ok := m.elements[id]
		if !ok {
			continue
		}
		out = append(out, engine.ItemData{
			LocalID:    e.LocalID,
			Type:       e.Type,
			Name:       e.Name,
			Attributes: e.Attributes,
		})
	}
	return out, nil
}

func (m *Model) element(id int) (Element, bool) {
	e, ok := m.elements[id]
	return e, ok
}

func (m *Model) Bounds(ctx context.Context, ids []int) (engine.Box, error) {
	if err := ctx.Err(); err != nil {
		return engine.Box{}, err
	}
	var pts []engine.Vec3
	for _, id := range ids {
		if e, ok := m.elements[id]; ok && e.Bounds != nil {
			pts = append(pts, e.Bounds.Min, e.Bounds.Max)
		}
	}
	return engine.BoxOf(pts...), nil
}

func (m *Model) Categories(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cats []string
	for _, e := range m.elements {
		if e.Bounds != nil && e.Type != "" && !slices.Contains(cats, e.Type) {
			cats = append(cats, e.Type)
		}
	}
	slices.Sort(cats)
	return cats, nil
}

func (m *Model) ItemsOfCategories(ctx context.Context, patterns []string) (spatialtree.IDSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("category pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	out := spatialtree.IDSet{}
	for id, e := range m.elements {
		if e.Bounds == nil {
			continue
		}
		for _, re := range res {
			if re.MatchString(e.Type) {
				out.Add(id)
				break
			}
		}
	}
	return out, nil
}

func (m *Model) SetVisible(ctx context.Context, ids []int, visible bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if visible {
			delete(m.hidden, id)
		} else {
			m.hidden.Add(id)
		}
	}
	return nil
}

func (m *Model) ResetVisible(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.hidden = spatialtree.IDSet{}
	m.mu.Unlock()
	return nil
}

func (m *Model) Hidden() spatialtree.IDSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(spatialtree.IDSet, len(m.hidden))
	for id := range m.hidden {
		out.Add(id)
	}
	return out
}

// GeometryIDs returns the ids of every element with geometry.
func (m *Model) GeometryIDs() []int {
	var ids []int
	for id, e := range m.elements {
		if e.Bounds != nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
