// Package tree is the spatial tree panel: one expandable tree per loaded
// model, filtered by a search query, with row selection forwarded to the
// application as messages.
package tree

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/inspector"
	"github.com/zjrosen/bimview/internal/keys"
	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/spatialtree"
)

// SelectMsg asks the application to highlight a row.
type SelectMsg struct {
	Selection inspector.Selection
}

// ClearMsg asks the application to clear the highlight.
type ClearMsg struct{}

// ReloadMsg asks the application to reload the spatial trees.
type ReloadMsg struct{}

// CategoryAction is a visibility change on a category.
type CategoryAction int

const (
	CategoryIsolate CategoryAction = iota
	CategoryHide
	CategoryShowAll
)

// CategoryMsg asks the application to change category visibility.
type CategoryMsg struct {
	Action   CategoryAction
	Category string
}

type root struct {
	modelID string
	tree    *spatialtree.Filtered
}

// row is one visible line of the panel.
type row struct {
	modelID string
	node    *spatialtree.Filtered
	depth   int
	// lastAt[d] is whether the ancestor at depth d (the row itself at
	// depth) is the last of its siblings.
	lastAt   []bool
	category string // nearest category, the row's own or an ancestor's
	parent   int    // index of the parent row, -1 at the top
}

// Model holds the tree panel state.
type Model struct {
	trees []inspector.ModelTree
	roots []root
	query string

	// overrides records expand/collapse toggles on top of
	// spatialtree.ShouldExpand, keyed by the unfiltered node.
	overrides map[*spatialtree.Node]bool
	counts    map[*spatialtree.Node]int

	rows      []row
	cursor    int
	scrollTop int
	width     int
	height    int

	input     textinput.Model
	searching bool

	active      *spatialtree.Node
	highlighted engine.ModelIDMap
	showCounts  bool
	focused     bool
}

// New creates an empty panel.
func New() *Model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "search category or id"
	ti.CharLimit = 128
	return &Model{
		overrides:  map[*spatialtree.Node]bool{},
		counts:     map[*spatialtree.Node]int{},
		input:      ti,
		showCounts: true,
		focused:    true,
	}
}

// SetSize sets the panel dimensions, search line included.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = max(width-4, 1)
	m.ensureCursorVisible()
}

// SetShowCounts toggles the element count shown after group rows.
func (m *Model) SetShowCounts(show bool) {
	m.showCounts = show
}

// SetFocused marks whether the panel receives keys.
func (m *Model) SetFocused(focused bool) {
	m.focused = focused
}

// SetTrees replaces the model trees, keeping the query and, when the row
// is still present, the cursor.
func (m *Model) SetTrees(trees []inspector.ModelTree) {
	prev := m.cursorNode()
	m.trees = trees
	m.counts = map[*spatialtree.Node]int{}
	m.refilter()
	m.restoreCursor(prev)
	log.Debug(log.CatUI, "Tree panel updated", "models", len(trees), "rows", len(m.rows))
}

// Trees returns the trees shown.
func (m *Model) Trees() []inspector.ModelTree {
	return m.trees
}

// SetQuery filters the trees. Expansion toggles are reset.
func (m *Model) SetQuery(q string) {
	if q == m.query {
		return
	}
	prev := m.cursorNode()
	m.query = q
	m.overrides = map[*spatialtree.Node]bool{}
	m.refilter()
	if !m.restoreCursor(prev) {
		m.cursor = 0
		m.scrollTop = 0
	}
}

// Query returns the active search query.
func (m *Model) Query() string {
	return m.query
}

// Searching reports whether the search input has focus.
func (m *Model) Searching() bool {
	return m.searching
}

// SetHighlighted marks the elements of the current highlight. nil clears.
func (m *Model) SetHighlighted(sel engine.ModelIDMap) {
	m.highlighted = sel
	if len(sel) == 0 {
		m.active = nil
	}
}

// Len returns the number of visible rows.
func (m *Model) Len() int {
	return len(m.rows)
}

// Cursor returns the cursor row index.
func (m *Model) Cursor() int {
	return m.cursor
}

// Selected returns the row under the cursor.
func (m *Model) Selected() (inspector.Selection, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return inspector.Selection{}, false
	}
	r := m.rows[m.cursor]
	return inspector.Selection{ModelID: r.modelID, Node: r.node}, true
}

// SelectedCategory returns the category of the cursor row, or of its
// nearest categorised ancestor.
func (m *Model) SelectedCategory() string {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return ""
	}
	return m.rows[m.cursor].category
}

func (m *Model) cursorNode() *spatialtree.Node {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].node.Original
}

func (m *Model) restoreCursor(n *spatialtree.Node) bool {
	if n != nil {
		for i, r := range m.rows {
			if r.node.Original == n {
				m.cursor = i
				m.ensureCursorVisible()
				return true
			}
		}
	}
	m.cursor = min(m.cursor, max(len(m.rows)-1, 0))
	m.ensureCursorVisible()
	return false
}

func (m *Model) refilter() {
	m.roots = m.roots[:0]
	for _, t := range m.trees {
		if f := spatialtree.Filter(t.Tree, m.query); f != nil {
			m.roots = append(m.roots, root{modelID: t.ModelID, tree: f})
		}
	}
	m.flatten()
}

func (m *Model) expanded(n *spatialtree.Filtered, depth int) bool {
	if len(n.Children) == 0 {
		return false
	}
	if v, ok := m.overrides[n.Original]; ok {
		return v
	}
	return spatialtree.ShouldExpand(n.Original, m.query, depth)
}

func (m *Model) flatten() {
	m.rows = m.rows[:0]
	for i, r := range m.roots {
		m.walk(r.modelID, r.tree, 0, []bool{i == len(m.roots)-1}, "", -1)
	}
}

func (m *Model) walk(modelID string, n *spatialtree.Filtered, depth int, lastAt []bool, category string, parent int) {
	if n.Category != "" {
		category = n.Category
	}
	m.rows = append(m.rows, row{
		modelID:  modelID,
		node:     n,
		depth:    depth,
		lastAt:   lastAt,
		category: category,
		parent:   parent,
	})
	if !m.expanded(n, depth) {
		return
	}
	self := len(m.rows) - 1
	for i, c := range n.Children {
		childLast := append(append([]bool(nil), lastAt...), i == len(n.Children)-1)
		m.walk(modelID, c, depth+1, childLast, category, self)
	}
}

// MoveCursor moves the cursor by delta, respecting bounds.
func (m *Model) MoveCursor(delta int) {
	m.cursor = max(min(m.cursor+delta, len(m.rows)-1), 0)
	m.ensureCursorVisible()
}

// Toggle flips the expansion of the cursor row.
func (m *Model) Toggle() {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return
	}
	r := m.rows[m.cursor]
	if len(r.node.Children) == 0 {
		return
	}
	m.setExpanded(r, !m.expanded(r.node, r.depth))
}

func (m *Model) setExpanded(r row, expand bool) {
	n := r.node.Original
	m.overrides[n] = expand
	m.flatten()
	m.restoreCursor(n)
}

// Expand opens the cursor row, or steps to its first child when open.
func (m *Model) Expand() {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return
	}
	r := m.rows[m.cursor]
	if len(r.node.Children) == 0 {
		return
	}
	if m.expanded(r.node, r.depth) {
		m.MoveCursor(1)
		return
	}
	m.setExpanded(r, true)
}

// Collapse closes the cursor row, or steps to its parent when closed.
func (m *Model) Collapse() {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return
	}
	r := m.rows[m.cursor]
	if m.expanded(r.node, r.depth) {
		m.setExpanded(r, false)
		return
	}
	if r.parent >= 0 {
		m.cursor = r.parent
		m.ensureCursorVisible()
	}
}

func (m *Model) ensureCursorVisible() {
	vh := m.viewportHeight()
	if m.cursor >= m.scrollTop+vh {
		m.scrollTop = m.cursor - vh + 1
	}
	if m.cursor < m.scrollTop {
		m.scrollTop = m.cursor
	}
	maxScroll := max(len(m.rows)-vh, 0)
	m.scrollTop = max(min(m.scrollTop, maxScroll), 0)
}

// viewportHeight is the number of row lines below the search line.
func (m *Model) viewportHeight() int {
	return max(m.height-1, 1)
}

// Update handles keys and mouse clicks. The returned command carries a
// SelectMsg, ClearMsg, ReloadMsg or CategoryMsg for the application.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if !m.focused {
			return nil
		}
		return m.updateKeys(msg)
	case tea.MouseMsg:
		return m.updateMouse(msg)
	}
	if m.searching {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) updateSearch(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Search.Accept):
		m.searching = false
		m.input.Blur()
		return nil
	case key.Matches(msg, keys.Search.Cancel):
		m.searching = false
		m.input.Blur()
		m.input.SetValue("")
		m.SetQuery("")
		return nil
	case key.Matches(msg, keys.Search.Up):
		m.MoveCursor(-1)
		return nil
	case key.Matches(msg, keys.Search.Down):
		m.MoveCursor(1)
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.SetQuery(m.input.Value())
	return cmd
}

func (m *Model) updateKeys(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Tree.Up):
		m.MoveCursor(-1)
	case key.Matches(msg, keys.Tree.Down):
		m.MoveCursor(1)
	case key.Matches(msg, keys.Tree.Top):
		m.MoveCursor(-len(m.rows))
	case key.Matches(msg, keys.Tree.Bottom):
		m.MoveCursor(len(m.rows))
	case key.Matches(msg, keys.Tree.Expand):
		m.Expand()
	case key.Matches(msg, keys.Tree.Collapse):
		m.Collapse()
	case key.Matches(msg, keys.Tree.Search):
		m.searching = true
		m.input.SetValue(m.query)
		m.input.CursorEnd()
		return m.input.Focus()
	case key.Matches(msg, keys.Tree.Select):
		return m.selectCmd()
	case key.Matches(msg, keys.Tree.ClearSelection):
		m.active = nil
		return func() tea.Msg { return ClearMsg{} }
	case key.Matches(msg, keys.Tree.Reload):
		return func() tea.Msg { return ReloadMsg{} }
	case key.Matches(msg, keys.Tree.Isolate):
		return m.categoryCmd(CategoryIsolate)
	case key.Matches(msg, keys.Tree.Hide):
		return m.categoryCmd(CategoryHide)
	case key.Matches(msg, keys.Tree.ShowAll):
		return func() tea.Msg { return CategoryMsg{Action: CategoryShowAll} }
	}
	return nil
}

func (m *Model) selectCmd() tea.Cmd {
	sel, ok := m.Selected()
	if !ok {
		return nil
	}
	m.active = sel.Node.Original
	return func() tea.Msg { return SelectMsg{Selection: sel} }
}

func (m *Model) categoryCmd(action CategoryAction) tea.Cmd {
	cat := m.SelectedCategory()
	if cat == "" {
		return nil
	}
	return func() tea.Msg { return CategoryMsg{Action: action, Category: cat} }
}

func (m *Model) updateMouse(msg tea.MouseMsg) tea.Cmd {
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		m.MoveCursor(-1)
		return nil
	case msg.Button == tea.MouseButtonWheelDown:
		m.MoveCursor(1)
		return nil
	case msg.Button != tea.MouseButtonLeft || msg.Action != tea.MouseActionRelease:
		return nil
	}
	end := min(m.scrollTop+m.viewportHeight(), len(m.rows))
	for i := m.scrollTop; i < end; i++ {
		if z := zone.Get(rowZoneID(i)); z != nil && z.InBounds(msg) {
			if m.cursor == i && len(m.rows[i].node.Children) > 0 {
				m.Toggle()
				return nil
			}
			m.cursor = i
			m.ensureCursorVisible()
			return m.selectCmd()
		}
	}
	return nil
}
