// Package listview implements the state machine shared by every filtered,
// paginated list page of the admin console: filter and pagination state, its
// projection onto the URL query, debounced search, stale response guarding,
// and the session-expiry terminal state.
package listview

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldKind constrains the values a filter accepts when parsed from a URL.
type FieldKind int

const (
	// FieldText accepts any non-blank string.
	FieldText FieldKind = iota
	// FieldEnum accepts one of Field.Options.
	FieldEnum
	// FieldDate accepts a calendar date in YYYY-MM-DD form.
	FieldDate
	// FieldNumber accepts a decimal number.
	FieldNumber
)

// DateLayout is the wire format of date filters.
const DateLayout = "2006-01-02"

// pageKey is the URL query key carrying the current page.
const pageKey = "page"

// Field declares one filter of a list page.
type Field struct {
	// Key is the URL query key.
	Key string
	// Param is the backend query parameter; Key is used when empty.
	Param   string
	Kind    FieldKind
	Options []string
}

// BackendParam returns the name the backend expects for the field.
func (f Field) BackendParam() string {
	if f.Param != "" {
		return f.Param
	}
	return f.Key
}

func (f Field) accepts(value string) bool {
	switch f.Kind {
	case FieldEnum:
		return slices.Contains(f.Options, value)
	case FieldDate:
		_, err := time.Parse(DateLayout, value)
		return err == nil
	case FieldNumber:
		_, err := strconv.ParseFloat(value, 64)
		return err == nil
	default:
		return true
	}
}

// Schema describes one entity's list page.
type Schema struct {
	// Entity names the collection, for example "orders".
	Entity string
	// Path is the page route the URL projection is rooted at.
	Path string
	// PageSize is the fixed number of rows per page.
	PageSize int
	// Search is the key of the free-text field; empty when the page has none.
	Search string
	Fields []Field
}

// Field returns the declaration for key.
func (s Schema) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// ParseQuery reads filters and page from a URL query. Unknown keys, invalid
// values and blank values are dropped. A missing or malformed page yields 1.
func (s Schema) ParseQuery(q url.Values) (FilterState, int) {
	filters := FilterState{}
	for _, f := range s.Fields {
		value := strings.TrimSpace(q.Get(f.Key))
		if value == "" || !f.accepts(value) {
			continue
		}
		filters[f.Key] = value
	}
	page, err := strconv.Atoi(q.Get(pageKey))
	if err != nil || page < 1 {
		page = 1
	}
	return filters, page
}

// EncodeQuery serialises filters and page deterministically. The page term is
// omitted on page 1 so the default state encodes to the empty string.
func (s Schema) EncodeQuery(filters FilterState, page int) string {
	values := url.Values{}
	for _, f := range s.Fields {
		if v := filters.Get(f.Key); v != "" {
			values.Set(f.Key, v)
		}
	}
	if page > 1 {
		values.Set(pageKey, strconv.Itoa(page))
	}
	return values.Encode()
}

// URL returns the page path carrying the encoded state.
func (s Schema) URL(filters FilterState, page int) string {
	query := s.EncodeQuery(filters, page)
	if query == "" {
		return s.Path
	}
	return s.Path + "?" + query
}

// BackendParams builds the list request parameters: page, per_page and every
// active filter under its backend name.
func (s Schema) BackendParams(filters FilterState, p PaginationState) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(p.Page, 1)))
	params.Set("per_page", strconv.Itoa(s.PageSize))
	for _, f := range s.Fields {
		if v := filters.Get(f.Key); v != "" {
			params.Set(f.BackendParam(), v)
		}
	}
	return params
}

// FilterState holds the active filters keyed by URL key. It never contains
// blank values. Mutators return a copy so snapshots stay immutable.
type FilterState map[string]string

// Get returns the value for key or "".
func (f FilterState) Get(key string) string {
	return f[key]
}

// Set returns a copy with key set to value. A blank value removes the key.
func (f FilterState) Set(key, value string) FilterState {
	out := f.Clone()
	value = strings.TrimSpace(value)
	if value == "" {
		delete(out, key)
		return out
	}
	out[key] = value
	return out
}

// Clone returns an independent copy.
func (f FilterState) Clone() FilterState {
	out := make(FilterState, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// IsEmpty reports whether no filter is active.
func (f FilterState) IsEmpty() bool {
	return len(f) == 0
}

// Equal reports whether both states hold the same filters.
func (f FilterState) Equal(other FilterState) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		if other[k] != v {
			return false
		}
	}
	return true
}
