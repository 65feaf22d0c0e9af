// Package selector implements the POS and feature pickers used by the token
// editor. Selectors hold only view state; applying a choice to a token is the
// editor's job.
package selector

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

var (
	// ErrNotSelectable is returned when a choice does not resolve to a leaf.
	ErrNotSelectable = errors.New("category is not selectable")
	// ErrUnknownFeature is returned for a feature key or value the POS does not define.
	ErrUnknownFeature = errors.New("unknown feature for part of speech")
)

// POSSelector presents the taxonomy as a collapsible tree.
//
// Branches behave as an accordion: opening a branch closes its open siblings
// together with their descendants, ancestors stay open.
type POSSelector struct {
	tax     *taxonomy.Taxonomy
	open    map[int]bool
	visible bool
}

// NewPOSSelector creates a closed selector with every branch collapsed.
func NewPOSSelector(tax *taxonomy.Taxonomy) *POSSelector {
	return &POSSelector{tax: tax, open: make(map[int]bool)}
}

// Show opens the selector.
func (s *POSSelector) Show() { s.visible = true }

// Hide closes the selector without choosing anything.
func (s *POSSelector) Hide() { s.visible = false }

// Visible reports whether the selector is shown.
func (s *POSSelector) Visible() bool { return s.visible }

// IsOpen reports whether a branch is expanded.
func (s *POSSelector) IsOpen(id int) bool { return s.open[id] }

// Toggle flips a branch between expanded and collapsed.
// Toggling a leaf or an unknown ID does nothing.
func (s *POSSelector) Toggle(id int) {
	n, ok := s.tax.Node(id)
	if !ok {
		return
	}
	if _, isBranch := n.(*taxonomy.Branch); !isBranch {
		return
	}

	if s.open[id] {
		s.close(id)
		return
	}

	for _, sib := range s.tax.Siblings(id) {
		s.close(sib)
	}
	s.open[id] = true
}

func (s *POSSelector) close(id int) {
	delete(s.open, id)
	for _, d := range s.tax.Descendants(id) {
		delete(s.open, d)
	}
}

// Rows returns the visible rows of the tree in pre-order.
func (s *POSSelector) Rows() []taxonomy.Row {
	return s.tax.Flatten(s.IsOpen)
}

// Choose resolves a leaf to its designation and closes the selector.
func (s *POSSelector) Choose(id int) (string, error) {
	n, ok := s.tax.Node(id)
	if !ok {
		return "", ErrNotSelectable
	}
	leaf, ok := n.(*taxonomy.Leaf)
	if !ok {
		return "", ErrNotSelectable
	}
	s.visible = false
	return leaf.Designation, nil
}

// OpenIDs returns the expanded branch IDs in ascending order.
func (s *POSSelector) OpenIDs() []int {
	ids := make([]int, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Encode serialises the open set for a query string, e.g. "1,15".
func (s *POSSelector) Encode() string {
	ids := s.OpenIDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// Restore replaces the open set with a value produced by Encode.
// Unknown IDs and leaves are ignored.
func (s *POSSelector) Restore(encoded string) {
	s.open = make(map[int]bool)
	for _, part := range strings.Split(encoded, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if n, ok := s.tax.Node(id); ok {
			if _, isBranch := n.(*taxonomy.Branch); isBranch {
				s.open[id] = true
			}
		}
	}
}

// ToggledEncoding returns the encoding the open set would have after
// toggling id, leaving the selector unchanged. Renderers use it for links.
func (s *POSSelector) ToggledEncoding(id int) string {
	c := &POSSelector{tax: s.tax, open: make(map[int]bool, len(s.open))}
	for k := range s.open {
		c.open[k] = true
	}
	c.Toggle(id)
	return c.Encode()
}
