package editor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/selector"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

// State is the lifecycle state of a sentence editor.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateLoadError State = "load-error"
	StateSaving    State = "saving"
	StateSaveError State = "save-error"
)

// Backend is the subset of the tagging API the editor needs.
type Backend interface {
	GetSentence(ctx context.Context, id int) (*models.Sentence, error)
	SaveSentence(ctx context.Context, id int, req models.SaveSentenceRequest) (*models.Sentence, error)
}

// Snapshot is the serialisable state of an editor, used to keep drafts
// between requests.
type Snapshot struct {
	SentenceID int              `json:"sentence_id"`
	State      State            `json:"state"`
	Sentence   *models.Sentence `json:"sentence,omitempty"`
	Dirty      bool             `json:"dirty"`
	Error      string           `json:"error,omitempty"`
	Seq        uint64           `json:"seq"`
	Revision   uint64           `json:"revision"`
}

// Editor owns one sentence's token list and its edits until they are saved.
// Every save is a full replacement of the sentence's tokens.
type Editor struct {
	mu       sync.Mutex
	tax      *taxonomy.Taxonomy
	backend  Backend
	logger   *zap.Logger
	onChange func(Snapshot)

	id       int
	state    State
	sentence *models.Sentence
	lastErr  string
	seq      uint64
	revision uint64
	savedRev uint64

	// LastWriterWins disables discarding of superseded load responses, so the
	// last response to resolve overwrites local state.
	LastWriterWins bool
}

// New creates an idle editor for a sentence.
func New(tax *taxonomy.Taxonomy, backend Backend, id int, logger *zap.Logger) *Editor {
	return &Editor{
		tax:     tax,
		backend: backend,
		logger:  logger.Named("editor"),
		id:      id,
		state:   StateIdle,
	}
}

// Restore creates an editor from a snapshot.
func Restore(tax *taxonomy.Taxonomy, backend Backend, snap Snapshot, logger *zap.Logger) *Editor {
	e := New(tax, backend, snap.SentenceID, logger)
	e.state = snap.State
	if snap.Sentence != nil {
		e.sentence = snap.Sentence.Clone()
	}
	e.lastErr = snap.Error
	e.seq = snap.Seq
	e.revision = snap.Revision
	if !snap.Dirty {
		e.savedRev = snap.Revision
	}
	return e
}

// OnChange registers a callback invoked after every state or content change.
func (e *Editor) OnChange(fn func(Snapshot)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// Snapshot returns the current state.
func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Editor) snapshotLocked() Snapshot {
	s := Snapshot{
		SentenceID: e.id,
		State:      e.state,
		Dirty:      e.revision != e.savedRev,
		Error:      e.lastErr,
		Seq:        e.seq,
		Revision:   e.revision,
	}
	if e.sentence != nil {
		s.Sentence = e.sentence.Clone()
	}
	return s
}

// notify must be called without e.mu held.
func (e *Editor) notify(s Snapshot) {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// State returns the lifecycle state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the message of the last load or save failure.
func (e *Editor) Err() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Dirty reports whether there are edits not yet saved.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision != e.savedRev
}

// Sentence returns a copy of the current sentence, or nil before load.
func (e *Editor) Sentence() *models.Sentence {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sentence == nil {
		return nil
	}
	return e.sentence.Clone()
}

// DisplayText joins the current token forms with single spaces.
func (e *Editor) DisplayText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sentence == nil {
		return ""
	}
	return e.sentence.DisplayText()
}

// Load fetches the sentence. Local edits are replaced by the server copy.
func (e *Editor) Load(ctx context.Context) error {
	e.mu.Lock()
	e.seq++
	mySeq := e.seq
	e.state = StateLoading
	e.lastErr = ""
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)

	s, err := e.backend.GetSentence(ctx, e.id)

	e.mu.Lock()
	if !e.LastWriterWins && mySeq != e.seq {
		e.mu.Unlock()
		e.logger.Debug("Discarding superseded sentence load",
			zap.Int("sentence_id", e.id),
			zap.Uint64("seq", mySeq))
		return ErrStale
	}
	if err != nil {
		e.state = StateLoadError
		e.lastErr = err.Error()
		snap = e.snapshotLocked()
		e.mu.Unlock()
		e.notify(snap)
		return fmt.Errorf("failed to load sentence %d: %w", e.id, err)
	}
	e.sentence = s.Clone()
	e.state = StateReady
	e.revision++
	e.savedRev = e.revision
	snap = e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
	return nil
}

// Save sends the full sentence. On failure local edits are kept and the
// editor moves to save-error, from which Save may be retried.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateSaving {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	if e.sentence == nil {
		e.mu.Unlock()
		return ErrNotReady
	}
	req := models.NewSaveRequest(e.sentence)
	rev := e.revision
	e.state = StateSaving
	e.lastErr = ""
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)

	_, err := e.backend.SaveSentence(ctx, e.id, req)

	e.mu.Lock()
	if err != nil {
		e.state = StateSaveError
		e.lastErr = err.Error()
		snap = e.snapshotLocked()
		e.mu.Unlock()
		e.notify(snap)
		e.logger.Warn("Sentence save failed",
			zap.Int("sentence_id", e.id),
			zap.Error(err))
		return fmt.Errorf("failed to save sentence %d: %w", e.id, err)
	}
	e.state = StateReady
	e.savedRev = rev
	snap = e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)

	e.logger.Info("Sentence saved",
		zap.Int("sentence_id", e.id),
		zap.Int("tokens", len(req.Tokens)))
	return nil
}

// Discard drops local edits; the next view reloads from the server.
func (e *Editor) Discard() {
	e.mu.Lock()
	e.sentence = nil
	e.state = StateIdle
	e.lastErr = ""
	e.revision++
	e.savedRev = e.revision
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// edit replaces token i with fn's result. Edits are accepted whenever a
// sentence is present, including while a save is in flight.
func (e *Editor) edit(i int, fn func(models.Token) (models.Token, error)) error {
	e.mu.Lock()
	if e.sentence == nil {
		e.mu.Unlock()
		return ErrNotReady
	}
	if i < 0 || i >= len(e.sentence.Tokens) {
		e.mu.Unlock()
		return ErrTokenIndex
	}
	updated, err := fn(e.sentence.Tokens[i].Clone())
	if err != nil {
		e.mu.Unlock()
		return err
	}

	tokens := make([]models.Token, len(e.sentence.Tokens))
	copy(tokens, e.sentence.Tokens)
	tokens[i] = updated
	next := *e.sentence
	next.Tokens = tokens
	e.sentence = &next
	e.revision++
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
	return nil
}

// SetForm replaces a token's surface form.
func (e *Editor) SetForm(i int, form string) error {
	return e.edit(i, func(t models.Token) (models.Token, error) {
		t.Form = form
		return t, nil
	})
}

// SetLemma replaces a token's lemma.
func (e *Editor) SetLemma(i int, lemma string) error {
	return e.edit(i, func(t models.Token) (models.Token, error) {
		t.Lemma = lemma
		return t, nil
	})
}

// SelectPOS re-classifies a token and clears its features.
func (e *Editor) SelectPOS(i int, designation string) error {
	return e.edit(i, func(t models.Token) (models.Token, error) {
		return WithPOS(e.tax, t, designation)
	})
}

// ChoosePOS resolves a leaf of the POS selector and applies it to token i.
func (e *Editor) ChoosePOS(i int, sel *selector.POSSelector, leafID int) error {
	d, err := sel.Choose(leafID)
	if err != nil {
		return err
	}
	return e.SelectPOS(i, d)
}

// SelectFeature upserts a feature value on token i.
func (e *Editor) SelectFeature(i int, key, value string) error {
	return e.edit(i, func(t models.Token) (models.Token, error) {
		feats, err := selector.NewFeatureSelector(e.tax, t).Select(key, value)
		if err != nil {
			return t, err
		}
		t.Feats = feats
		return t, nil
	})
}

// RemoveFeature deletes a feature from token i; absent keys are a no-op.
func (e *Editor) RemoveFeature(i int, key string) error {
	return e.edit(i, func(t models.Token) (models.Token, error) {
		t.Feats = selector.NewFeatureSelector(e.tax, t).Remove(key)
		return t, nil
	})
}

// SetCorrected marks the sentence as reviewed or not.
func (e *Editor) SetCorrected(corrected bool) error {
	e.mu.Lock()
	if e.sentence == nil {
		e.mu.Unlock()
		return ErrNotReady
	}
	next := *e.sentence
	if corrected {
		next.IsCorrected = models.Corrected
	} else {
		next.IsCorrected = models.NotCorrected
	}
	e.sentence = &next
	e.revision++
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
	return nil
}

// FeatureSelector returns a selector for token i.
func (e *Editor) FeatureSelector(i int) (*selector.FeatureSelector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sentence == nil {
		return nil, ErrNotReady
	}
	if i < 0 || i >= len(e.sentence.Tokens) {
		return nil, ErrTokenIndex
	}
	return selector.NewFeatureSelector(e.tax, e.sentence.Tokens[i]), nil
}
