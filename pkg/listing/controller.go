package listing

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/models"
)

// RenderState is what the list view shows. Exactly one applies at a time.
type RenderState string

const (
	RenderLoading RenderState = "loading"
	RenderError   RenderState = "error"
	RenderEmpty   RenderState = "empty"
	RenderItems   RenderState = "items"
)

// Fetcher loads one page of sentences.
type Fetcher interface {
	ListSentences(ctx context.Context, q models.SentenceQuery) (*models.SentencePage, error)
}

// View is a render-ready snapshot of the list.
type View struct {
	State   RenderState
	Query   models.SentenceQuery
	Input   string
	Items   []models.SentenceSummary
	Meta    models.PageMeta
	Err     error
	CanPrev bool
	CanNext bool
}

// Controller fetches pages for a Filter and keeps the latest View.
type Controller struct {
	filter  *Filter
	fetcher Fetcher
	logger  *zap.Logger

	mu   sync.Mutex
	seq  uint64
	view View
}

// NewController returns a controller in the loading state.
func NewController(filter *Filter, fetcher Fetcher, logger *zap.Logger) *Controller {
	return &Controller{
		filter:  filter,
		fetcher: fetcher,
		logger:  logger.Named("listing"),
		view:    View{State: RenderLoading, Query: filter.Query()},
	}
}

// Filter returns the controller's filter.
func (c *Controller) Filter() *Filter { return c.filter }

// View returns the latest view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Refresh fetches the page the filter currently describes. A response that
// arrives after a newer Refresh started is dropped.
func (c *Controller) Refresh(ctx context.Context) View {
	q := c.filter.Query()

	c.mu.Lock()
	c.seq++
	mySeq := c.seq
	c.view = View{State: RenderLoading, Query: q, Input: c.filter.SearchInput()}
	c.mu.Unlock()

	page, err := c.fetcher.ListSentences(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if mySeq != c.seq {
		c.logger.Debug("Dropping superseded list response", zap.Int("page", q.Page))
		return c.view
	}

	v := View{Query: q, Input: c.filter.SearchInput()}
	switch {
	case err != nil:
		v.State = RenderError
		v.Err = err
		c.logger.Warn("Failed to list sentences",
			zap.Int("page", q.Page),
			zap.String("status", string(q.Status)),
			zap.Error(err))
	case len(page.Items) == 0:
		v.State = RenderEmpty
		v.Meta = page.Meta
	default:
		v.State = RenderItems
		v.Items = page.Items
		v.Meta = page.Meta
	}
	if err == nil {
		c.filter.SetTotalPages(page.Meta.TotalPages)
	}
	v.CanPrev = c.filter.CanPrev()
	v.CanNext = c.filter.CanNext()
	c.view = v
	return v
}
