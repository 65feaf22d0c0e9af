package models

import (
	"net/url"
	"strconv"
	"strings"
)

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	PageSize    int `json:"page_size"`
	TotalPages  int `json:"total_pages"`
	TotalItems  int `json:"total_items"`
}

// SentencePage is the response of GET /tagging/sentences.
type SentencePage struct {
	Meta  PageMeta          `json:"meta"`
	Items []SentenceSummary `json:"items"`
}

// UserPage is the response of GET /admin/users.
type UserPage struct {
	Meta  *PageMeta `json:"meta,omitempty"`
	Items []User    `json:"items"`
}

// TaggingResult is the response of POST /tagging/run.
type TaggingResult struct {
	Message          string `json:"message"`
	SentencesCreated int    `json:"sentences_created"`
	TokensCreated    int    `json:"tokens_created"`
}

// StatusFilter narrows the sentence list by review status.
type StatusFilter string

const (
	StatusAny          StatusFilter = ""
	StatusCorrected    StatusFilter = "corrected"
	StatusNotCorrected StatusFilter = "not-corrected"
)

// ParseStatusFilter accepts the filter names and the backend's 1/0 form.
// Anything else means no filter.
func ParseStatusFilter(s string) StatusFilter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "corrected", "1", "true":
		return StatusCorrected
	case "not-corrected", "0", "false":
		return StatusNotCorrected
	default:
		return StatusAny
	}
}

// Param returns the backend query value, or "" for no filter.
func (f StatusFilter) Param() string {
	switch f {
	case StatusCorrected:
		return "1"
	case StatusNotCorrected:
		return "0"
	default:
		return ""
	}
}

// SentenceQuery is one request for a page of the sentence list.
type SentenceQuery struct {
	Page     int
	PageSize int
	Search   string
	Status   StatusFilter
}

// Values encodes the query for GET /tagging/sentences. Empty search and
// the "any" status are omitted.
func (q SentenceQuery) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("page_size", strconv.Itoa(q.PageSize))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if p := q.Status.Param(); p != "" {
		v.Set("status", p)
	}
	return v
}
