// Package listing holds the sentence list state: pagination, the debounced
// search box and the review-status filter.
package listing

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kgcorpus/tagging-console/pkg/models"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 20

// ErrPageOutOfRange is returned for a page outside [1, total_pages].
var ErrPageOutOfRange = errors.New("page out of range")

// Option configures a Filter.
type Option func(*Filter)

// WithClock replaces the wall clock used for search debouncing.
func WithClock(after AfterFunc) Option {
	return func(f *Filter) { f.after = after }
}

// WithDebounce sets the search quiet period.
func WithDebounce(d time.Duration) Option {
	return func(f *Filter) { f.delay = d }
}

// Filter is the list query state. The search box has two values: the
// input, updated on every keystroke, and the committed query that drives
// requests.
type Filter struct {
	mu         sync.Mutex
	page       int
	pageSize   int
	totalPages int
	input      string
	query      string
	status     models.StatusFilter
	onCommit   func(models.SentenceQuery)

	delay time.Duration
	after AfterFunc
	deb   *Debouncer
}

// NewFilter returns a filter on page 1 with no search and no status filter.
func NewFilter(pageSize int, opts ...Option) *Filter {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	f := &Filter{page: 1, pageSize: pageSize, delay: DefaultDebounce}
	for _, opt := range opts {
		opt(f)
	}
	f.deb = NewDebouncer(f.delay, f.after)
	return f
}

// FromQuery restores a filter from a query, e.g. one decoded from a URL.
// The search input and committed search are both set to q.Search.
func FromQuery(q models.SentenceQuery, opts ...Option) *Filter {
	f := NewFilter(q.PageSize, opts...)
	if q.Page > 1 {
		f.page = q.Page
	}
	f.input = q.Search
	f.query = strings.TrimSpace(q.Search)
	f.status = q.Status
	return f
}

// OnCommit registers fn to be called with the new query every time the
// query that drives requests changes.
func (f *Filter) OnCommit(fn func(models.SentenceQuery)) {
	f.mu.Lock()
	f.onCommit = fn
	f.mu.Unlock()
}

// Query returns the request the current state describes.
func (f *Filter) Query() models.SentenceQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryLocked()
}

func (f *Filter) queryLocked() models.SentenceQuery {
	return models.SentenceQuery{
		Page:     f.page,
		PageSize: f.pageSize,
		Search:   f.query,
		Status:   f.status,
	}
}

// fire must be called without f.mu held.
func (f *Filter) fire(q models.SentenceQuery) {
	f.mu.Lock()
	fn := f.onCommit
	f.mu.Unlock()
	if fn != nil {
		fn(q)
	}
}

// SearchInput returns the text currently in the search box.
func (f *Filter) SearchInput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// TypeSearch records a keystroke. The search is committed after the quiet
// period unless another keystroke arrives first.
func (f *Filter) TypeSearch(text string) {
	f.mu.Lock()
	f.input = text
	f.mu.Unlock()
	f.deb.Trigger(f.CommitSearch)
}

// CommitSearch commits the current input immediately and resets to page 1.
// Committing an unchanged search is a no-op.
func (f *Filter) CommitSearch() {
	f.deb.Cancel()
	f.mu.Lock()
	q := strings.TrimSpace(f.input)
	if q == f.query {
		f.mu.Unlock()
		return
	}
	f.query = q
	f.page = 1
	next := f.queryLocked()
	f.mu.Unlock()
	f.fire(next)
}

// SubmitSearch sets the input and commits it at once, without arming the
// debounce. It is for callers that only see already-settled input, such as
// a submitted form.
func (f *Filter) SubmitSearch(text string) {
	f.mu.Lock()
	f.input = text
	f.mu.Unlock()
	f.CommitSearch()
}

// SetStatus changes the status filter and resets to page 1.
func (f *Filter) SetStatus(s models.StatusFilter) {
	f.mu.Lock()
	if s == f.status {
		f.mu.Unlock()
		return
	}
	f.status = s
	f.page = 1
	next := f.queryLocked()
	f.mu.Unlock()
	f.fire(next)
}

// SetTotalPages records the page count reported by the last response.
func (f *Filter) SetTotalPages(n int) {
	f.mu.Lock()
	f.totalPages = n
	f.mu.Unlock()
}

// Page returns the current page number.
func (f *Filter) Page() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// TotalPages returns the last reported page count.
func (f *Filter) TotalPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalPages
}

// CanPrev reports whether the previous-page control is enabled.
func (f *Filter) CanPrev() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page > 1
}

// CanNext reports whether the next-page control is enabled.
func (f *Filter) CanNext() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page < f.totalPages
}

// GoTo moves to page p. Pages outside [1, total_pages] are rejected without
// changing state.
func (f *Filter) GoTo(p int) error {
	f.mu.Lock()
	if p < 1 || p > f.totalPages {
		f.mu.Unlock()
		return ErrPageOutOfRange
	}
	if p == f.page {
		f.mu.Unlock()
		return nil
	}
	f.page = p
	next := f.queryLocked()
	f.mu.Unlock()
	f.fire(next)
	return nil
}

// Next moves one page forward.
func (f *Filter) Next() error { return f.GoTo(f.Page() + 1) }

// Prev moves one page back.
func (f *Filter) Prev() error { return f.GoTo(f.Page() - 1) }

// Close drops any pending debounced commit.
func (f *Filter) Close() { f.deb.Cancel() }
