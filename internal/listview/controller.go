package listview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
)

var (
	// ErrPageOutOfRange is returned when a page outside [1, TotalPages] is requested.
	ErrPageOutOfRange = errors.New("listview: page out of range")
	// ErrSessionExpired is returned once the backend rejected the session.
	ErrSessionExpired = errors.New("listview: session expired")
	// ErrInvalidViewMode is returned for unknown view modes.
	ErrInvalidViewMode = errors.New("listview: invalid view mode")
)

// Result is one page of rows plus the backend's total row count.
type Result[T any] struct {
	Items []T
	Total int
}

// Fetcher loads a page of rows for the given backend parameters.
type Fetcher[T any] interface {
	List(ctx context.Context, params url.Values) (Result[T], error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc[T any] func(ctx context.Context, params url.Values) (Result[T], error)

// List calls f.
func (f FetchFunc[T]) List(ctx context.Context, params url.Values) (Result[T], error) {
	return f(ctx, params)
}

// Searcher runs a free-text query against a dedicated search endpoint.
type Searcher[T any] interface {
	Search(ctx context.Context, query string) (Result[T], error)
}

// SearchFunc adapts a function to Searcher.
type SearchFunc[T any] func(ctx context.Context, query string) (Result[T], error)

// Search calls f.
func (f SearchFunc[T]) Search(ctx context.Context, query string) (Result[T], error) {
	return f(ctx, query)
}

// Enricher decorates freshly fetched rows before they are published.
type Enricher[T any] func(ctx context.Context, items []T) []T

// Navigator receives the canonical URL whenever the state changes. Replace
// must not add a history entry.
type Navigator interface {
	Replace(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

// Replace calls f.
func (f NavigatorFunc) Replace(target string) { f(target) }

// Notifier surfaces transient messages to the user.
type Notifier interface {
	Notify(kind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind, message string)

// Notify calls f.
func (f NotifierFunc) Notify(kind, message string) { f(kind, message) }

// Option configures a Controller.
type Option[T any] func(*Controller[T])

// WithSearcher routes non-empty search queries to s.
func WithSearcher[T any](s Searcher[T]) Option[T] {
	return func(c *Controller[T]) { c.searcher = s }
}

// WithEnricher decorates every successful fetch.
func WithEnricher[T any](e Enricher[T]) Option[T] {
	return func(c *Controller[T]) { c.enrich = e }
}

// WithNavigator installs the URL writer.
func WithNavigator[T any](n Navigator) Option[T] {
	return func(c *Controller[T]) { c.nav = n }
}

// WithNotifier installs the toast sink.
func WithNotifier[T any](n Notifier) Option[T] {
	return func(c *Controller[T]) { c.notify = n }
}

// WithPreferences persists the view mode in store under owner.
func WithPreferences[T any](store PreferenceStore, owner string) Option[T] {
	return func(c *Controller[T]) {
		c.prefs = store
		c.owner = owner
	}
}

// WithUnauthorized registers the callback fired the first time the backend
// rejects the session.
func WithUnauthorized[T any](fn func()) Option[T] {
	return func(c *Controller[T]) { c.onExpire = fn }
}

// WithDebounce overrides the search quiet period.
func WithDebounce[T any](d time.Duration) Option[T] {
	return func(c *Controller[T]) { c.debounce = NewDebouncer(d) }
}

// WithLogger sets the logger.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *Controller[T]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller owns the state of one list page. Every state change that affects
// the query rewrites the URL and issues a fetch; search changes are debounced.
// Responses are tagged with a sequence number and only the most recent request
// may publish its result.
type Controller[T any] struct {
	schema   Schema
	fetcher  Fetcher[T]
	searcher Searcher[T]
	enrich   Enricher[T]
	nav      Navigator
	notify   Notifier
	prefs    PreferenceStore
	owner    string
	onExpire func()
	logger   *slog.Logger
	debounce *Debouncer

	mu      sync.Mutex
	filters FilterState
	page    PaginationState
	mode    ViewMode
	items   []T
	loaded  bool
	loading bool
	failed  bool
	expired bool
	seq     uint64
}

// New builds a Controller in the default state: no filters, page 1, list view.
func New[T any](schema Schema, fetcher Fetcher[T], opts ...Option[T]) *Controller[T] {
	c := &Controller[T]{
		schema:   schema,
		fetcher:  fetcher,
		logger:   slog.New(slog.DiscardHandler),
		debounce: NewDebouncer(DefaultDebounce),
		filters:  FilterState{},
		page:     PaginationState{Page: 1, Limit: schema.PageSize},
		mode:     ViewList,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schema returns the page declaration.
func (c *Controller[T]) Schema() Schema {
	return c.schema
}

// Restore hydrates filters, page and the stored view mode without fetching.
func (c *Controller[T]) Restore(ctx context.Context, query url.Values) {
	filters, page := c.schema.ParseQuery(query)
	mode := c.storedViewMode(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
	c.page = PaginationState{Page: page, Limit: c.schema.PageSize}
	c.mode = mode
}

// Mount restores state from the URL, rewrites the URL to its canonical form
// and loads the first page.
func (c *Controller[T]) Mount(ctx context.Context, query url.Values) error {
	c.Restore(ctx, query)
	c.navigate()
	return c.fetch(ctx)
}

// SetFilter changes one filter, resets to page 1 and fetches. Changes to the
// search key are debounced through SetSearch.
func (c *Controller[T]) SetFilter(ctx context.Context, key, value string) error {
	if c.schema.Search != "" && key == c.schema.Search {
		return c.SetSearch(ctx, value)
	}
	field, ok := c.schema.Field(key)
	if !ok {
		return fmt.Errorf("listview: unknown filter %q", key)
	}
	value = strings.TrimSpace(value)
	if value != "" && !field.accepts(value) {
		return fmt.Errorf("listview: invalid value for %s: %w", key, httpx.ErrValidation)
	}

	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return ErrSessionExpired
	}
	if c.filters.Get(key) == value {
		c.mu.Unlock()
		return nil
	}
	c.filters = c.filters.Set(key, value)
	c.page.Page = 1
	c.mu.Unlock()

	c.debounce.Cancel()
	c.navigate()
	return c.fetch(ctx)
}

// SetSearch updates the free-text query, resets to page 1 and schedules a
// fetch after the quiet period. Every call restarts the period.
func (c *Controller[T]) SetSearch(ctx context.Context, query string) error {
	if c.schema.Search == "" {
		return fmt.Errorf("listview: %s has no search field", c.schema.Entity)
	}
	query = strings.TrimSpace(query)

	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return ErrSessionExpired
	}
	if c.filters.Get(c.schema.Search) == query {
		c.mu.Unlock()
		return nil
	}
	c.filters = c.filters.Set(c.schema.Search, query)
	c.page.Page = 1
	c.mu.Unlock()

	c.navigate()
	detached := context.WithoutCancel(ctx)
	c.debounce.Trigger(func() {
		_ = c.fetch(detached)
	})
	return nil
}

// Flush issues a pending debounced fetch now instead of after the quiet period.
func (c *Controller[T]) Flush(ctx context.Context) error {
	if !c.debounce.Cancel() {
		return nil
	}
	return c.fetch(ctx)
}

// Refresh re-issues the current query now. A pending debounced fetch is
// replaced rather than run twice.
func (c *Controller[T]) Refresh(ctx context.Context) error {
	c.debounce.Cancel()
	return c.fetch(ctx)
}

// SetPage moves to page n. Once a total is known, n must lie in
// [1, TotalPages].
func (c *Controller[T]) SetPage(ctx context.Context, n int) error {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return ErrSessionExpired
	}
	if n < 1 || (c.loaded && n > max(c.page.TotalPages(), 1)) {
		c.mu.Unlock()
		return ErrPageOutOfRange
	}
	if c.loaded && n == c.page.Page {
		c.mu.Unlock()
		return nil
	}
	c.page.Page = n
	c.mu.Unlock()

	c.debounce.Cancel()
	c.navigate()
	return c.fetch(ctx)
}

// NextPage advances one page.
func (c *Controller[T]) NextPage(ctx context.Context) error {
	return c.SetPage(ctx, c.Pagination().Page+1)
}

// PrevPage goes back one page.
func (c *Controller[T]) PrevPage(ctx context.Context) error {
	return c.SetPage(ctx, c.Pagination().Page-1)
}

// Clear drops every filter, returns to page 1 and fetches. A pending search
// is abandoned.
func (c *Controller[T]) Clear(ctx context.Context) error {
	c.debounce.Cancel()

	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return ErrSessionExpired
	}
	c.filters = FilterState{}
	c.page.Page = 1
	c.mu.Unlock()

	c.navigate()
	return c.fetch(ctx)
}

// SetViewMode switches the presentation and persists it. It never fetches.
func (c *Controller[T]) SetViewMode(ctx context.Context, mode ViewMode) error {
	parsed, ok := ParseViewMode(string(mode))
	if !ok {
		return ErrInvalidViewMode
	}
	c.mu.Lock()
	c.mode = parsed
	c.mu.Unlock()

	if c.prefs == nil || c.owner == "" {
		return nil
	}
	if err := c.prefs.SetViewMode(ctx, c.owner, c.schema.Entity, parsed); err != nil {
		c.logger.Warn("persist view mode", slog.String("entity", c.schema.Entity), slog.Any("error", err))
		return err
	}
	return nil
}

// Pagination returns the current pagination state.
func (c *Controller[T]) Pagination() PaginationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Expired reports whether the backend rejected the session.
func (c *Controller[T]) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Snapshot returns an immutable copy of the state for rendering.
func (c *Controller[T]) Snapshot() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]T, len(c.items))
	copy(items, c.items)
	return State[T]{
		schema:     c.schema,
		Entity:     c.schema.Entity,
		Filters:    c.filters.Clone(),
		Pagination: c.page,
		ViewMode:   c.mode,
		Items:      items,
		Loaded:     c.loaded,
		Loading:    c.loading || c.debounce.Pending(),
		Failed:     c.failed,
		Expired:    c.expired,
	}
}

func (c *Controller[T]) navigate() {
	if c.nav == nil {
		return
	}
	c.mu.Lock()
	target := c.schema.URL(c.filters, c.page.Page)
	c.mu.Unlock()
	c.nav.Replace(target)
}

func (c *Controller[T]) storedViewMode(ctx context.Context) ViewMode {
	if c.prefs == nil || c.owner == "" {
		return ViewList
	}
	mode, err := c.prefs.ViewMode(ctx, c.owner, c.schema.Entity)
	if err != nil {
		c.logger.Warn("load view mode", slog.String("entity", c.schema.Entity), slog.Any("error", err))
		return ViewList
	}
	parsed, _ := ParseViewMode(string(mode))
	return parsed
}

func (c *Controller[T]) fetch(ctx context.Context) error {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return ErrSessionExpired
	}
	c.seq++
	seq := c.seq
	filters := c.filters.Clone()
	page := c.page
	c.loading = true
	c.mu.Unlock()

	var (
		res Result[T]
		err error
	)
	if query := filters.Get(c.schema.Search); query != "" && c.searcher != nil {
		// Search endpoints return every match; the page is cut here.
		if res, err = c.searcher.Search(ctx, query); err == nil {
			res = pageOf(res, page)
		}
	} else {
		res, err = c.fetcher.List(ctx, c.schema.BackendParams(filters, page))
	}
	if err == nil && c.enrich != nil {
		res.Items = c.enrich(ctx, res.Items)
	}

	if errors.Is(err, httpx.ErrUnauthorized) {
		c.expire()
		return ErrSessionExpired
	}

	c.mu.Lock()
	if seq != c.seq || c.expired {
		c.mu.Unlock()
		c.logger.Debug("discard stale response", slog.String("entity", c.schema.Entity), slog.Uint64("seq", seq))
		return nil
	}
	c.loading = false
	if err != nil {
		c.failed = true
		c.mu.Unlock()
		c.logger.Error("load list", slog.String("entity", c.schema.Entity), slog.Any("error", err))
		if c.notify != nil {
			c.notify.Notify(httpx.ToastError, "Failed to load "+c.schema.Entity)
		}
		return err
	}
	c.items = res.Items
	c.page.Total = max(res.Total, len(res.Items))
	c.loaded = true
	c.failed = false
	c.mu.Unlock()
	return nil
}

func (c *Controller[T]) expire() {
	c.mu.Lock()
	first := !c.expired
	c.expired = true
	c.loading = false
	c.mu.Unlock()
	if !first {
		return
	}
	c.debounce.Cancel()
	c.logger.Info("session rejected by backend", slog.String("entity", c.schema.Entity))
	if c.onExpire != nil {
		c.onExpire()
	}
}

// pageOf cuts the rows of page p out of an unpaged result. Total becomes the
// number of matches.
func pageOf[T any](res Result[T], p PaginationState) Result[T] {
	total := max(res.Total, len(res.Items))
	if p.Limit <= 0 {
		return Result[T]{Items: res.Items, Total: total}
	}
	start := min((max(p.Page, 1)-1)*p.Limit, len(res.Items))
	end := min(start+p.Limit, len(res.Items))
	return Result[T]{Items: res.Items[start:end], Total: total}
}
