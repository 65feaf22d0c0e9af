package models

import (
	"fmt"
	"strings"

	"github.com/kgcorpus/tagging-console/pkg/jsonutil"
)

// CorrectedFlag marks whether a sentence's annotation was human-reviewed.
// The backend sends it as 0/1; booleans are accepted too.
type CorrectedFlag int

const (
	NotCorrected CorrectedFlag = 0
	Corrected    CorrectedFlag = 1
)

// Bool reports whether the flag is set.
func (c CorrectedFlag) Bool() bool { return c != NotCorrected }

// UnmarshalJSON accepts 0/1, true/false and null.
func (c *CorrectedFlag) UnmarshalJSON(data []byte) error {
	set, err := jsonutil.FlexibleBoolValue(data)
	if err != nil {
		return fmt.Errorf("invalid is_corrected: %w", err)
	}
	*c = NotCorrected
	if set {
		*c = Corrected
	}
	return nil
}

// SentenceSummary is one row of the paginated sentence list.
type SentenceSummary struct {
	ID          int           `json:"id"`
	Text        string        `json:"text"`
	IsCorrected CorrectedFlag `json:"is_corrected"`
}

// Sentence is a sentence with its ordered tokens.
type Sentence struct {
	ID          int           `json:"id"`
	Text        string        `json:"text"`
	IsCorrected CorrectedFlag `json:"is_corrected"`
	Tokens      []Token       `json:"tokens"`
}

// DisplayText joins token forms with single spaces. It is always derived,
// never stored.
func (s *Sentence) DisplayText() string {
	forms := make([]string, len(s.Tokens))
	for i, t := range s.Tokens {
		forms[i] = t.Form
	}
	return strings.Join(forms, " ")
}

// Clone returns a deep copy of the sentence.
func (s *Sentence) Clone() *Sentence {
	c := *s
	c.Tokens = make([]Token, len(s.Tokens))
	for i, t := range s.Tokens {
		c.Tokens[i] = t.Clone()
	}
	return &c
}

// SaveSentenceRequest is the full-replace body of PATCH /tagging/sentences/{id}.
type SaveSentenceRequest struct {
	ID           int           `json:"id"`
	SentenceText string        `json:"sentence_text"`
	IsCorrected  CorrectedFlag `json:"is_corrected"`
	Tokens       []Token       `json:"tokens"`
}

// NewSaveRequest builds the save payload from the current sentence state.
func NewSaveRequest(s *Sentence) SaveSentenceRequest {
	c := s.Clone()
	return SaveSentenceRequest{
		ID:           c.ID,
		SentenceText: c.DisplayText(),
		IsCorrected:  c.IsCorrected,
		Tokens:       c.Tokens,
	}
}

func upper(s string) string { return strings.ToUpper(s) }
