// Package taxonomy holds the static part-of-speech tree and the per-POS
// morphological feature dictionary. Both are loaded once and never mutated.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultYAML []byte

// ErrInvalidTaxonomy is returned when taxonomy data violates its invariants.
var ErrInvalidTaxonomy = errors.New("invalid taxonomy")

// Node is a tagged variant: either a *Branch or a *Leaf.
type Node interface {
	NodeID() int
	NodeLabel() string
	isNode()
}

// Branch groups child categories. It is never selectable.
type Branch struct {
	ID       int
	Label    string
	Children []Node
}

// Leaf is a selectable category carrying a POS designation.
type Leaf struct {
	ID          int
	Label       string
	Designation string
}

func (b *Branch) NodeID() int       { return b.ID }
func (b *Branch) NodeLabel() string { return b.Label }
func (*Branch) isNode()             {}

func (l *Leaf) NodeID() int       { return l.ID }
func (l *Leaf) NodeLabel() string { return l.Label }
func (*Leaf) isNode()             {}

// Value is one admissible value of a feature.
type Value struct {
	Code  string `yaml:"code" json:"code"`
	Label string `yaml:"label" json:"label"`
}

// Feature is a morphological feature applicable to a POS.
type Feature struct {
	Key    string  `yaml:"key" json:"key"`
	Label  string  `yaml:"label" json:"label"`
	Values []Value `yaml:"values" json:"values"`
}

// ValueLabel returns the label for a value code, or the code itself.
func (f *Feature) ValueLabel(code string) string {
	for _, v := range f.Values {
		if v.Code == code {
			return v.Label
		}
	}
	return code
}

// HasValue reports whether code is an admissible value.
func (f *Feature) HasValue(code string) bool {
	return slices.ContainsFunc(f.Values, func(v Value) bool { return v.Code == code })
}

// Taxonomy is the loaded, validated tree and feature dictionary.
type Taxonomy struct {
	roots    []Node
	byID     map[int]Node
	parent   map[int]int
	leaves   map[string]*Leaf
	custom   map[string]bool
	features map[string][]Feature
}

type rawNode struct {
	ID          int       `yaml:"id"`
	Label       string    `yaml:"label"`
	Designation string    `yaml:"designation"`
	Children    []rawNode `yaml:"children"`
}

type rawTaxonomy struct {
	CustomTags []string             `yaml:"custom_tags"`
	Categories []rawNode            `yaml:"categories"`
	Features   map[string][]Feature `yaml:"features"`
}

// Default returns the taxonomy embedded in the binary.
func Default() (*Taxonomy, error) {
	return Parse(defaultYAML)
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Taxonomy {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads a taxonomy file, or the embedded one when path is empty.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates taxonomy YAML.
func Parse(data []byte) (*Taxonomy, error) {
	var raw rawTaxonomy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if len(raw.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidTaxonomy)
	}

	t := &Taxonomy{
		byID:     make(map[int]Node),
		parent:   make(map[int]int),
		leaves:   make(map[string]*Leaf),
		custom:   make(map[string]bool),
		features: make(map[string][]Feature),
	}

	for _, tag := range raw.CustomTags {
		t.custom[strings.ToUpper(tag)] = true
	}

	for _, rn := range raw.Categories {
		n, err := t.build(rn, 0)
		if err != nil {
			return nil, err
		}
		t.roots = append(t.roots, n)
	}

	for pos, feats := range raw.Features {
		if err := validateFeatures(pos, feats); err != nil {
			return nil, err
		}
		t.features[strings.ToUpper(pos)] = feats
	}

	return t, nil
}

func (t *Taxonomy) build(rn rawNode, parentID int) (Node, error) {
	if rn.ID == 0 {
		return nil, fmt.Errorf("%w: node %q has no id", ErrInvalidTaxonomy, rn.Label)
	}
	if _, dup := t.byID[rn.ID]; dup {
		return nil, fmt.Errorf("%w: duplicate node id %d", ErrInvalidTaxonomy, rn.ID)
	}

	hasChildren := len(rn.Children) > 0
	hasDesignation := rn.Designation != ""
	if hasChildren == hasDesignation {
		return nil, fmt.Errorf("%w: node %d must have either children or a designation", ErrInvalidTaxonomy, rn.ID)
	}

	t.parent[rn.ID] = parentID

	if hasDesignation {
		d := strings.ToUpper(rn.Designation)
		if _, dup := t.leaves[d]; dup {
			return nil, fmt.Errorf("%w: duplicate designation %s", ErrInvalidTaxonomy, d)
		}
		leaf := &Leaf{ID: rn.ID, Label: rn.Label, Designation: d}
		t.byID[rn.ID] = leaf
		t.leaves[d] = leaf
		return leaf, nil
	}

	branch := &Branch{ID: rn.ID, Label: rn.Label}
	t.byID[rn.ID] = branch
	for _, child := range rn.Children {
		n, err := t.build(child, rn.ID)
		if err != nil {
			return nil, err
		}
		branch.Children = append(branch.Children, n)
	}
	return branch, nil
}

func validateFeatures(pos string, feats []Feature) error {
	keys := make(map[string]bool, len(feats))
	for _, f := range feats {
		if f.Key == "" {
			return fmt.Errorf("%w: empty feature key under %s", ErrInvalidTaxonomy, pos)
		}
		if keys[f.Key] {
			return fmt.Errorf("%w: duplicate feature %s under %s", ErrInvalidTaxonomy, f.Key, pos)
		}
		keys[f.Key] = true

		codes := make(map[string]bool, len(f.Values))
		for _, v := range f.Values {
			if codes[v.Code] {
				return fmt.Errorf("%w: duplicate value %s for %s/%s", ErrInvalidTaxonomy, v.Code, pos, f.Key)
			}
			codes[v.Code] = true
		}
	}
	return nil
}

// Roots returns the top-level categories in display order.
func (t *Taxonomy) Roots() []Node { return t.roots }

// Node looks up a category by ID.
func (t *Taxonomy) Node(id int) (Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Parent returns the parent branch ID of a node; 0 for roots.
func (t *Taxonomy) Parent(id int) (int, bool) {
	p, ok := t.parent[id]
	return p, ok
}

// Siblings returns the IDs sharing id's parent, excluding id itself.
func (t *Taxonomy) Siblings(id int) []int {
	parentID, ok := t.parent[id]
	if !ok {
		return nil
	}
	var group []Node
	if parentID == 0 {
		group = t.roots
	} else if b, ok := t.byID[parentID].(*Branch); ok {
		group = b.Children
	}
	var out []int
	for _, n := range group {
		if n.NodeID() != id {
			out = append(out, n.NodeID())
		}
	}
	return out
}

// Descendants returns the IDs of every branch below id.
func (t *Taxonomy) Descendants(id int) []int {
	b, ok := t.byID[id].(*Branch)
	if !ok {
		return nil
	}
	var out []int
	for _, c := range b.Children {
		if cb, ok := c.(*Branch); ok {
			out = append(out, cb.ID)
			out = append(out, t.Descendants(cb.ID)...)
		}
	}
	return out
}

// Leaf returns the leaf carrying a designation.
func (t *Taxonomy) Leaf(designation string) (*Leaf, bool) {
	l, ok := t.leaves[strings.ToUpper(designation)]
	return l, ok
}

// Designations returns every selectable POS code in tree order.
func (t *Taxonomy) Designations() []string {
	var out []string
	Walk(t.roots, func(n Node, _ int) {
		if l, ok := n.(*Leaf); ok {
			out = append(out, l.Designation)
		}
	})
	return out
}

// IsCustom reports whether a designation belongs to the custom tag family
// stored under the "X" sentinel.
func (t *Taxonomy) IsCustom(designation string) bool {
	return t.custom[strings.ToUpper(designation)]
}

// Label returns the display label of a POS code, or the code itself.
func (t *Taxonomy) Label(code string) string {
	if l, ok := t.Leaf(code); ok {
		return l.Label
	}
	return code
}

// Features returns the feature definitions for a POS code.
// The boolean is false when the POS has no features; that is not an error.
func (t *Taxonomy) Features(pos string) ([]Feature, bool) {
	f, ok := t.features[strings.ToUpper(pos)]
	return f, ok && len(f) > 0
}

// Feature returns one feature definition for a POS code.
func (t *Taxonomy) Feature(pos, key string) (*Feature, bool) {
	feats, _ := t.Features(pos)
	for i := range feats {
		if feats[i].Key == key {
			return &feats[i], true
		}
	}
	return nil, false
}
