package spatialtree

import "slices"

// Filtered is a display copy of a tree node produced by Filter. Original
// points at the unfiltered node it was derived from, so acting on a pruned
// row can still reach the complete subtree.
type Filtered struct {
	Category string
	LocalID  *int
	Children []*Filtered
	Original *Node
}

// DisplayName mirrors Node.DisplayName.
func (f *Filtered) DisplayName() string {
	return f.Node().DisplayName()
}

// Node materializes f as a plain tree, dropping the back-references.
func (f *Filtered) Node() *Node {
	if f == nil {
		return nil
	}
	n := &Node{Category: f.Category, LocalID: f.LocalID}
	if len(f.Children) > 0 {
		n.Children = make([]*Node, len(f.Children))
		for i, c := range f.Children {
			n.Children[i] = c.Node()
		}
	}
	return n
}

// Filter returns the display tree of n for query.
//
//   - An empty query returns the whole tree.
//   - A node that matches itself is kept with its entire subtree.
//   - A node with matching descendants is kept with only those branches.
//   - Otherwise the result is nil.
func Filter(n *Node, query string) *Filtered {
	if n == nil {
		return nil
	}
	switch MatchesSelf(n, query) {
	case MatchSkipped, MatchFound:
		return mirror(n)
	}

	var kept []*Filtered
	for _, child := range n.Children {
		if fc := Filter(child, query); fc != nil {
			kept = append(kept, fc)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &Filtered{
		Category: n.Category,
		LocalID:  n.LocalID,
		Children: kept,
		Original: n,
	}
}

func mirror(n *Node) *Filtered {
	f := &Filtered{Category: n.Category, LocalID: n.LocalID, Original: n}
	if len(n.Children) > 0 {
		f.Children = make([]*Filtered, len(n.Children))
		for i, c := range n.Children {
			f.Children[i] = mirror(c)
		}
	}
	return f
}

// IDSet is a set of element local ids.
type IDSet map[int]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s IDSet) Add(id int) { s[id] = struct{}{} }

// Has reports whether id is in the set.
func (s IDSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// CollectLocalIDs adds every local id in the subtree rooted at n to acc.
func CollectLocalIDs(n *Node, acc IDSet) {
	if n == nil {
		return
	}
	if n.LocalID != nil {
		acc.Add(*n.LocalID)
	}
	for _, child := range n.Children {
		CollectLocalIDs(child, acc)
	}
}

// FindNode searches tree depth-first for target. Elements match by local
// id; group nodes (no id) match by category.
func FindNode(tree, target *Node) *Node {
	if tree == nil || target == nil {
		return nil
	}
	if target.LocalID != nil {
		if tree.LocalID != nil && *tree.LocalID == *target.LocalID {
			return tree
		}
	} else if tree.LocalID == nil && tree.Category == target.Category {
		return tree
	}
	for _, child := range tree.Children {
		if found := FindNode(child, target); found != nil {
			return found
		}
	}
	return nil
}
