package model

import "encoding/json"

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Envelope is the wire wrapper around every remote response. Paginated
// responses also carry the page metadata fields.
type Envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	Total      int             `json:"total,omitempty"`
	Page       int             `json:"page,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	TotalPages int             `json:"totalPages,omitempty"`
}

// Decode unmarshals the data payload into out. An absent payload leaves out untouched.
func (e *Envelope) Decode(out any) error {
	if e == nil || len(e.Data) == 0 || string(e.Data) == "null" || out == nil {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

// Page is one page of a remote collection.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPage builds a page whose metadata is consistent with its items no matter
// what the server reported: limit is positive, total covers the items and
// totalPages is derived from total and limit.
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if total < len(items) {
		total = len(items)
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: TotalPages(total, limit),
	}
}

// TotalPages is ceil(total/limit), or 0 for an empty collection.
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool {
	return p.Page < p.TotalPages
}

// Map returns a copy of the page whose items are transformed by fn.
func (p Page[T]) Map(fn func(T) T) Page[T] {
	out := p
	out.Items = make([]T, len(p.Items))
	for i, item := range p.Items {
		out.Items[i] = fn(item)
	}
	return out
}
