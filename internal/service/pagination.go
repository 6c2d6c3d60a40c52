package service

import "github.com/stemsi/exstem-assess/internal/response"

// Page is a normalized page request.
type Page struct {
	Page    int
	PerPage int
}

// NewPage clamps page to >= 1 and perPage to [1, 100], defaulting to 10.
func NewPage(page, perPage int) Page {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return Page{Page: page, PerPage: perPage}
}

// Limit returns the SQL limit.
func (p Page) Limit() int { return p.PerPage }

// Offset returns the SQL offset.
func (p Page) Offset() int { return (p.Page - 1) * p.PerPage }

// Pagination builds the envelope pagination block for total items.
func (p Page) Pagination(total int) *response.Pagination {
	return response.NewPagination(p.Page, p.PerPage, total)
}
