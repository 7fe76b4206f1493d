package spatialtree

import (
	"strconv"
	"strings"
)

// Outline renders n as one line per node, children indented by two spaces.
// Categorised elements carry their local id as "#id".
func Outline(n *Node) string {
	var sb strings.Builder
	writeOutline(&sb, n, 0)
	return sb.String()
}

func writeOutline(sb *strings.Builder, n *Node, depth int) {
	if n == nil {
		return
	}
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.DisplayName())
	if n.Category != "" && n.LocalID != nil {
		sb.WriteString(" #")
		sb.WriteString(strconv.Itoa(*n.LocalID))
	}
	sb.WriteString("\n")
	for _, c := range n.Children {
		writeOutline(sb, c, depth+1)
	}
}
