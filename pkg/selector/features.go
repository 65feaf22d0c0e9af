package selector

import (
	"maps"
	"slices"

	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

// Chip is a feature currently set on the token.
type Chip struct {
	Key        string
	Value      string
	KeyLabel   string
	ValueLabel string
}

// FeatureSelector lists the features applicable to a token's POS.
//
// Keys already set on the token stay listed and can be re-selected; choosing
// a new value for a set key replaces it.
type FeatureSelector struct {
	tax   *taxonomy.Taxonomy
	pos   string
	feats models.Features
	open  string
}

// NewFeatureSelector builds a selector for the token's effective POS.
func NewFeatureSelector(tax *taxonomy.Taxonomy, token models.Token) *FeatureSelector {
	return &FeatureSelector{
		tax:   tax,
		pos:   token.EffectivePOS(),
		feats: token.Feats.Clone(),
	}
}

// POS returns the code used to look up definitions.
func (s *FeatureSelector) POS() string { return s.pos }

// Available reports whether the POS defines any feature. When false the UI
// shows a "no features available" state and disables the opening control.
func (s *FeatureSelector) Available() bool {
	_, ok := s.tax.Features(s.pos)
	return ok
}

// Definitions returns every feature of the POS, set ones included.
func (s *FeatureSelector) Definitions() []taxonomy.Feature {
	f, _ := s.tax.Features(s.pos)
	return f
}

// Chips returns the features currently set, in definition order, followed
// by any keys the POS does not define.
func (s *FeatureSelector) Chips() []Chip {
	var chips []Chip
	seen := make(map[string]bool, len(s.feats))
	for _, def := range s.Definitions() {
		if v, ok := s.feats[def.Key]; ok {
			chips = append(chips, Chip{Key: def.Key, Value: v, KeyLabel: def.Label, ValueLabel: def.ValueLabel(v)})
			seen[def.Key] = true
		}
	}
	for _, k := range slices.Sorted(maps.Keys(s.feats)) {
		if !seen[k] {
			v := s.feats[k]
			chips = append(chips, Chip{Key: k, Value: v, KeyLabel: k, ValueLabel: v})
		}
	}
	return chips
}

// Features returns a copy of the current feature map.
func (s *FeatureSelector) Features() models.Features { return s.feats.Clone() }

// OpenKey returns the feature whose value list is expanded, or "".
func (s *FeatureSelector) OpenKey() string { return s.open }

// Toggle expands a feature's value list; only one list is open at a time.
func (s *FeatureSelector) Toggle(key string) {
	if s.open == key {
		s.open = ""
		return
	}
	if _, ok := s.tax.Feature(s.pos, key); ok {
		s.open = key
	}
}

// Select upserts key=value and closes only that feature's value list.
func (s *FeatureSelector) Select(key, value string) (models.Features, error) {
	def, ok := s.tax.Feature(s.pos, key)
	if !ok || !def.HasValue(value) {
		return s.Features(), ErrUnknownFeature
	}
	s.feats[key] = value
	if s.open == key {
		s.open = ""
	}
	return s.Features(), nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *FeatureSelector) Remove(key string) models.Features {
	delete(s.feats, key)
	return s.Features()
}
