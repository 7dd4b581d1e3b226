package model

import (
	"fmt"
	"strings"
)

// PageRange is an inclusive range of 1-based list page numbers.
type PageRange struct {
	From int
	To   int
}

// Pages returns the page numbers in order. A zero range means page 1 only.
func (r PageRange) Pages() []int {
	from, to := r.From, r.To
	if from <= 0 {
		from = 1
	}
	if to < from {
		to = from
	}
	pages := make([]int, 0, to-from+1)
	for p := from; p <= to; p++ {
		pages = append(pages, p)
	}
	return pages
}

// ScrapeQuery is the input to one collection operation.
type ScrapeQuery struct {
	Term      string
	Location  string
	Limit     int // 0 means no explicit bound
	PageRange PageRange
}

// Validate checks the fields every provider relies on.
func (q ScrapeQuery) Validate() error {
	if strings.TrimSpace(q.Term) == "" {
		return fmt.Errorf("query term is required")
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must be >= 0, got %d", q.Limit)
	}
	if q.PageRange.From < 0 || q.PageRange.To < 0 {
		return fmt.Errorf("page range must be positive, got %d..%d", q.PageRange.From, q.PageRange.To)
	}
	if q.PageRange.To > 0 && q.PageRange.To < q.PageRange.From {
		return fmt.Errorf("page range end %d is before start %d", q.PageRange.To, q.PageRange.From)
	}
	return nil
}

// Reached reports whether n results satisfy the limit.
func (q ScrapeQuery) Reached(n int) bool {
	return q.Limit > 0 && n >= q.Limit
}

// SearchText joins term and location the way map searches expect it.
func (q ScrapeQuery) SearchText() string {
	if q.Location == "" {
		return q.Term
	}
	return q.Term + " in " + q.Location
}

// Candidate is a listing reference discovered on a list page, before its detail is extracted.
type Candidate struct {
	Key     string // canonical URL or stable DOM identifier
	Preview string
	Page    int // list page or scroll round it was found on
}

// PeopleQuery is the input to the professional network provider.
type PeopleQuery struct {
	Credential string // raw cookie header value
	Title      string
	Location   string
	Limit      int
}
