package models

// PageOptions carries one-based pagination parameters.
type PageOptions struct {
	Page int
	Size int
}

// Normalize clamps the options to sane bounds: page >= 1, 1 <= size <= 100,
// defaulting to 20 items per page.
func (p *PageOptions) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	if p.Size > 100 {
		p.Size = 100
	}
}

// Offset returns the row offset for the normalized options.
func (p *PageOptions) Offset() int {
	p.Normalize()
	return (p.Page - 1) * p.Size
}

// CardPage is one page of cards together with paging metadata.
type CardPage struct {
	Items      []*Card `json:"items"`
	Page       int     `json:"page"`
	Size       int     `json:"size"`
	Total      int64   `json:"total"`
	TotalPages int     `json:"total_pages"`
}

// NewCardPage builds a page result from a normalized query.
func NewCardPage(items []*Card, opts PageOptions, total int64) *CardPage {
	opts.Normalize()
	totalPages := int(total) / opts.Size
	if int(total)%opts.Size > 0 {
		totalPages++
	}
	if totalPages == 0 {
		totalPages = 1
	}
	if items == nil {
		items = []*Card{}
	}
	return &CardPage{
		Items:      items,
		Page:       opts.Page,
		Size:       opts.Size,
		Total:      total,
		TotalPages: totalPages,
	}
}
