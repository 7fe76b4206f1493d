// Package spatialtree implements search, pruning and id collection over the
// spatial structure (storey, category, element) of a loaded model.
//
// Trees are produced by the engine and treated as immutable: every operation
// here either reads a tree or builds a new one.
package spatialtree

import (
	"strconv"
	"strings"
)

// Node is one entry of a model's spatial structure. A node with children is
// a group; a node with a LocalID and no children is an element.
type Node struct {
	Category string  `json:"category,omitempty" cbor:"category,omitempty"`
	LocalID  *int    `json:"localId,omitempty" cbor:"localId,omitempty"`
	Children []*Node `json:"children,omitempty" cbor:"children,omitempty"`
}

// ID returns a pointer to id, for building nodes in literals.
func ID(id int) *int { return &id }

// HasChildren reports whether n is a group node.
func (n *Node) HasChildren() bool {
	return n != nil && len(n.Children) > 0
}

// DisplayName is the label shown and searched for n: its category, or
// "Item <id>", or "Item Unknown" when it has neither.
func (n *Node) DisplayName() string {
	if n.Category != "" {
		return n.Category
	}
	if n.LocalID != nil {
		return "Item " + strconv.Itoa(*n.LocalID)
	}
	return "Item Unknown"
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	c := 1
	for _, child := range n.Children {
		c += child.Count()
	}
	return c
}

// Match is the result of testing a node against a query.
type Match int

const (
	// MatchSkipped means the query was empty and nothing was checked.
	MatchSkipped Match = iota
	MatchNone
	MatchFound
)

// MatchesSelf tests n alone: a case-insensitive substring match of query
// against the display name and the decimal local id.
func MatchesSelf(n *Node, query string) Match {
	if query == "" {
		return MatchSkipped
	}
	if n == nil {
		return MatchNone
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(n.DisplayName()), q) {
		return MatchFound
	}
	if n.LocalID != nil && strings.Contains(strconv.Itoa(*n.LocalID), q) {
		return MatchFound
	}
	return MatchNone
}

// MatchesSearch reports whether n or any descendant matches query. An empty
// query never matches.
func MatchesSearch(n *Node, query string) bool {
	if MatchesSelf(n, query) == MatchFound {
		return true
	}
	if query == "" || n == nil {
		return false
	}
	for _, child := range n.Children {
		if MatchesSearch(child, query) {
			return true
		}
	}
	return false
}

// ShouldExpand is the initial expansion state of a node rendered at depth
// level: while searching, expand when the node or one of its direct
// children matches; otherwise expand the first two levels.
func ShouldExpand(n *Node, query string, level int) bool {
	if query == "" {
		return level < 2
	}
	if MatchesSearch(n, query) {
		return true
	}
	for _, child := range n.Children {
		if MatchesSearch(child, query) {
			return true
		}
	}
	return false
}
