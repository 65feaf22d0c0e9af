// Package editor implements the token and sentence editing state machine.
// All edits are local; the only network operations are Load and Save.
package editor

import (
	"errors"
	"strings"

	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

var (
	ErrTokenIndex   = errors.New("token index out of range")
	ErrUnknownPOS   = errors.New("unknown part of speech")
	ErrNotReady     = errors.New("sentence is not loaded")
	ErrSaveInFlight = errors.New("save already in progress")
	ErrStale        = errors.New("response superseded by a newer request")
)

// WithPOS returns a copy of tok re-classified as designation.
// Custom-family designations are stored under the "X" sentinel with the
// lower-cased designation in XPOS. Features are always cleared because they
// are specific to the previous POS.
func WithPOS(tax *taxonomy.Taxonomy, tok models.Token, designation string) (models.Token, error) {
	if _, ok := tax.Leaf(designation); !ok {
		return tok, ErrUnknownPOS
	}
	out := tok.Clone()
	if tax.IsCustom(designation) {
		out.POS = models.POSOther
	} else {
		out.POS = strings.ToUpper(designation)
	}
	out.XPOS = strings.ToLower(designation)
	out.Feats = models.Features{}
	return out, nil
}

// DisplayPOS returns the label of the token's effective POS.
func DisplayPOS(tax *taxonomy.Taxonomy, tok models.Token) string {
	return tax.Label(tok.EffectivePOS())
}
