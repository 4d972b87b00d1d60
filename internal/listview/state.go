package listview

// State is a rendering snapshot of a Controller.
type State[T any] struct {
	schema Schema

	Entity     string
	Filters    FilterState
	Pagination PaginationState
	ViewMode   ViewMode
	Items      []T
	Loaded     bool
	Loading    bool
	Failed     bool
	Expired    bool
}

// URL is the canonical location of the snapshot.
func (s State[T]) URL() string {
	return s.schema.URL(s.Filters, s.Pagination.Page)
}

// Query is the encoded query string of the snapshot, without the leading '?'.
func (s State[T]) Query() string {
	return s.schema.EncodeQuery(s.Filters, s.Pagination.Page)
}

// PageURL returns the URL of page n under the current filters.
func (s State[T]) PageURL(n int) string {
	return s.schema.URL(s.Filters, n)
}

// Filter returns the value of one filter.
func (s State[T]) Filter(key string) string {
	return s.Filters.Get(key)
}

// HasFilters reports whether any filter is active.
func (s State[T]) HasFilters() bool {
	return !s.Filters.IsEmpty()
}

// Thumbnails reports whether the card layout is selected.
func (s State[T]) Thumbnails() bool {
	return s.ViewMode == ViewThumbnails
}

// Empty reports whether a completed load returned no rows.
func (s State[T]) Empty() bool {
	return s.Loaded && len(s.Items) == 0
}
