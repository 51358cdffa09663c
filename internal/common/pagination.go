package common

import (
	"net/http"
	"strconv"
)

// Page is the pagination block of a list response.
type Page struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePage reads ?page= (1-based) and ?limit=. The limit falls back to def
// and never exceeds maxPerPage.
func ParsePage(r *http.Request, def, maxPerPage int) Page {
	p := Page{Page: 1, PerPage: def}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.PerPage = v
	}
	if maxPerPage > 0 && p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Bounds records total and returns the slice bounds of this page within it.
// Pages past the end are empty.
func (p *Page) Bounds(total int) (start, end int) {
	p.TotalItems = total
	if p.PerPage <= 0 || p.Page <= 0 {
		return total, total
	}
	start = (p.Page - 1) * p.PerPage
	if start > total || start < 0 {
		return total, total
	}
	end = start + p.PerPage
	if end > total {
		end = total
	}
	return start, end
}
