// Package comments orders and nests ticket comments for display.
//
// Parent links are informational. They are not checked for cycles and may
// point at comments on other tickets, so threading here never drops a
// comment: anything whose parent is missing from the list, or that is only
// reachable through a cycle, is shown at the top level.
package comments

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

// Less orders comments by creation time, then by id
func Less(a, b *tracker.Comment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// Sort orders comments in place for display
func Sort(list []tracker.Comment) {
	sort.SliceStable(list, func(i, j int) bool {
		return Less(&list[i], &list[j])
	})
}

// Node is a comment with its display children
type Node struct {
	Comment  tracker.Comment `json:"comment"`
	Children []*Node         `json:"children,omitempty"`
}

// Thread nests comments under their parents. Roots and every child list
// come out in display order.
func Thread(list []tracker.Comment) []*Node {
	sorted := make([]tracker.Comment, len(list))
	copy(sorted, list)
	Sort(sorted)

	nodes := make(map[uuid.UUID]*Node, len(sorted))
	for i := range sorted {
		nodes[sorted[i].ID] = &Node{Comment: sorted[i]}
	}

	children := make(map[uuid.UUID][]*Node, len(sorted))
	var roots []*Node
	for i := range sorted {
		c := &sorted[i]
		n := nodes[c.ID]
		if c.Parent == nil || *c.Parent == c.ID {
			roots = append(roots, n)
			continue
		}
		if _, ok := nodes[*c.Parent]; !ok {
			roots = append(roots, n)
			continue
		}
		children[*c.Parent] = append(children[*c.Parent], n)
	}

	placed := make(map[uuid.UUID]bool, len(sorted))
	var attach func(n *Node)
	attach = func(n *Node) {
		placed[n.Comment.ID] = true
		for _, child := range children[n.Comment.ID] {
			if placed[child.Comment.ID] {
				continue
			}
			n.Children = append(n.Children, child)
			attach(child)
		}
	}
	for _, r := range roots {
		attach(r)
	}

	// Anything left is part of a parent cycle; promote the earliest
	// unplaced comment of each cycle to a root.
	for i := range sorted {
		n := nodes[sorted[i].ID]
		if placed[n.Comment.ID] {
			continue
		}
		roots = append(roots, n)
		attach(n)
	}

	sort.SliceStable(roots, func(i, j int) bool {
		return Less(&roots[i].Comment, &roots[j].Comment)
	})
	return roots
}

// Flatten walks a thread depth-first, returning each comment with its depth
func Flatten(roots []*Node) []FlatComment {
	var out []FlatComment
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		out = append(out, FlatComment{Comment: n.Comment, Depth: depth})
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return out
}

// FlatComment is a comment with its nesting depth
type FlatComment struct {
	Comment tracker.Comment `json:"comment"`
	Depth   int             `json:"depth"`
}
