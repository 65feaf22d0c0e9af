// Package models contains the wire and domain types shared by the tagging console.
package models

import (
	"encoding/json"
	"maps"

	"github.com/kgcorpus/tagging-console/pkg/jsonutil"
)

// POSOther is the primary POS code that defers the real designation to XPOS.
const POSOther = "X"

// Token is one word or punctuation unit of a sentence.
type Token struct {
	ID         int                     `json:"id"`
	TokenIndex jsonutil.FlexibleString `json:"token_index"` // 1-based position, string form
	Form       string                  `json:"form"`
	Lemma      string                  `json:"lemma"`
	POS        string                  `json:"pos"`
	XPOS       string                  `json:"xpos"`
	Feats      Features                `json:"feats"`
}

// Features maps a morphological feature key to its value code.
type Features map[string]string

// UnmarshalJSON accepts null as an empty map so callers never see a nil map.
func (f *Features) UnmarshalJSON(data []byte) error {
	m := map[string]string{}
	if string(data) != "null" {
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
	}
	*f = m
	return nil
}

// MarshalJSON always writes an object, never null.
func (f Features) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(f))
}

// Clone returns an independent copy of the feature map.
func (f Features) Clone() Features {
	if f == nil {
		return Features{}
	}
	return maps.Clone(f)
}

// EffectivePOS returns the code used to look up feature definitions:
// the primary code, or the upper-cased extended code for the "other" sentinel.
func (t Token) EffectivePOS() string {
	if t.POS == POSOther {
		return upper(t.XPOS)
	}
	return t.POS
}

// Clone returns a deep copy of the token.
func (t Token) Clone() Token {
	t.Feats = t.Feats.Clone()
	return t
}
