// Package listpage serves list pages driven by a listview.Controller. Each
// request builds a fresh controller, restores it from the URL, applies one
// event and renders the resulting snapshot; htmx keeps the location bar in
// sync through HX-Replace-Url.
package listpage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/listview"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/internal/shared"
	"github.com/wrightcommerce/shopadmin/internal/view"
)

// StateTemplate refreshes only the hidden list state, out of band.
const StateTemplate = "partials/list_state.html"

const msgNoSuchPage = "That page does not exist"

// Events accepted by the rows endpoint.
const (
	EventFilter  = "filter"
	EventSearch  = "search"
	EventPage    = "page"
	EventClear   = "clear"
	EventRefresh = "refresh"
)

// Expirer signs the user out after the backend rejected their session.
type Expirer interface {
	Expire(w http.ResponseWriter, r *http.Request)
}

// Deps are shared by every list page.
type Deps struct {
	Logger    *slog.Logger
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Prefs     listview.PreferenceStore
	Expirer   Expirer
	// Debounce is the search quiet period, used by the controller and echoed
	// to the page for the client-side trigger delay.
	Debounce time.Duration
}

// Config declares one list page.
type Config[T any] struct {
	Schema   listview.Schema
	Title    string
	Page     string
	Rows     string
	Fetcher  listview.Fetcher[T]
	Searcher listview.Searcher[T]
	Enricher listview.Enricher[T]
	// Extra loads page-level data rendered beside the rows, such as filter
	// options or stats cards. Its failure is logged and does not hide the list.
	Extra func(ctx context.Context) (any, error)
}

// Data is handed to the page and rows templates.
type Data[T any] struct {
	List       listview.State[T]
	Extra      any
	Schema     listview.Schema
	DebounceMS int64
	Error      string
}

// Handler serves one list page.
type Handler[T any] struct {
	deps Deps
	cfg  Config[T]
}

// New constructs a Handler.
func New[T any](deps Deps, cfg Config[T]) *Handler[T] {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Debounce <= 0 {
		deps.Debounce = listview.DefaultDebounce
	}
	return &Handler[T]{deps: deps, cfg: cfg}
}

// MountRoutes registers the page, its rows partial and the view-mode toggle.
func (h *Handler[T]) MountRoutes(r chi.Router) {
	r.Get("/", h.index)
	r.Get("/rows", h.rows)
	r.Post("/view-mode", h.viewMode)
}

// recorder collects the controller's side effects for one request.
type recorder struct {
	url     string
	kind    string
	message string
	expired bool
}

func (rec *recorder) Replace(target string) { rec.url = target }

func (rec *recorder) Notify(kind, message string) {
	rec.kind, rec.message = kind, message
}

func (h *Handler[T]) controller(r *http.Request, rec *recorder) *listview.Controller[T] {
	opts := []listview.Option[T]{
		listview.WithNavigator[T](rec),
		listview.WithNotifier[T](rec),
		listview.WithUnauthorized[T](func() { rec.expired = true }),
		listview.WithDebounce[T](h.deps.Debounce),
		listview.WithLogger[T](h.deps.Logger),
	}
	if h.cfg.Searcher != nil {
		opts = append(opts, listview.WithSearcher[T](h.cfg.Searcher))
	}
	if h.cfg.Enricher != nil {
		opts = append(opts, listview.WithEnricher[T](h.cfg.Enricher))
	}
	if id := auth.IdentityFromContext(r.Context()); id != nil && h.deps.Prefs != nil {
		opts = append(opts, listview.WithPreferences[T](h.deps.Prefs, id.Owner()))
	}
	return listview.New[T](h.cfg.Schema, h.cfg.Fetcher, opts...)
}

func (h *Handler[T]) index(w http.ResponseWriter, r *http.Request) {
	rec := &recorder{}
	ctrl := h.controller(r, rec)
	ctx := r.Context()

	// The list and the page extras come from independent endpoints.
	var (
		g            errgroup.Group
		extra        any
		extraExpired bool
	)
	g.Go(func() error {
		_ = ctrl.Mount(ctx, r.URL.Query())
		return nil
	})
	if h.cfg.Extra != nil {
		g.Go(func() error {
			var err error
			if extra, err = h.cfg.Extra(ctx); err != nil {
				extraExpired = errors.Is(err, httpx.ErrUnauthorized)
				h.deps.Logger.Warn("list extras", slog.String("entity", h.cfg.Schema.Entity), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
	_ = h.settlePage(ctx, ctrl, rec)
	if rec.expired || extraExpired {
		h.deps.Expirer.Expire(w, r)
		return
	}

	data := Data[T]{
		List:       ctrl.Snapshot(),
		Extra:      extra,
		Schema:     h.cfg.Schema,
		DebounceMS: h.deps.Debounce.Milliseconds(),
		Error:      rec.message,
	}
	if httpx.IsHTMX(r) {
		httpx.ReplaceURL(w, rec.url)
	}
	if err := h.deps.Templates.Render(w, h.cfg.Page, auth.PageData(r, h.deps.CSRF, h.cfg.Title, data)); err != nil {
		h.deps.Logger.Error("render "+h.cfg.Page, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler[T]) rows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, err := url.ParseQuery(q.Get("state"))
	if err != nil {
		state = url.Values{}
	}

	rec := &recorder{}
	ctrl := h.controller(r, rec)
	ctx := r.Context()
	ctrl.Restore(ctx, state)

	event := q.Get("event")
	switch event {
	case EventFilter:
		key := q.Get("key")
		err = ctrl.SetFilter(ctx, key, eventValue(q, key))
	case EventSearch:
		if err = ctrl.SetSearch(ctx, eventValue(q, h.cfg.Schema.Search)); err == nil {
			err = ctrl.Flush(ctx)
		}
	case EventPage:
		n, convErr := strconv.Atoi(q.Get("value"))
		if convErr != nil {
			n = 0
		}
		err = ctrl.SetPage(ctx, n)
	case EventClear:
		err = ctrl.Clear(ctx)
		httpx.Trigger(w, "filtersCleared", true)
	case EventRefresh, "":
		err = ctrl.Refresh(ctx)
	default:
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}

	if rec.expired || errors.Is(err, listview.ErrSessionExpired) {
		h.deps.Expirer.Expire(w, r)
		return
	}
	switch {
	case errors.Is(err, listview.ErrPageOutOfRange):
		rec.Notify(httpx.ToastError, msgNoSuchPage)
	case errors.Is(err, httpx.ErrValidation):
		rec.Notify(httpx.ToastError, "Invalid filter value")
	case err != nil && rec.message == "":
		h.deps.Logger.Warn("list event", slog.String("entity", h.cfg.Schema.Entity), slog.String("event", event), slog.Any("error", err))
		rec.Notify(httpx.ToastError, "Failed to load "+h.cfg.Schema.Entity)
	}

	// Events that turned out to be no-ops, or were rejected, still render
	// the rows for the restored state.
	if snap := ctrl.Snapshot(); !snap.Loaded && !snap.Failed {
		_ = ctrl.Refresh(ctx)
	}
	_ = h.settlePage(ctx, ctrl, rec)
	if rec.expired {
		h.deps.Expirer.Expire(w, r)
		return
	}
	snap := ctrl.Snapshot()

	if rec.url == "" {
		rec.url = snap.URL()
	}
	httpx.ReplaceURL(w, rec.url)
	if rec.message != "" {
		httpx.Toast(w, rec.kind, rec.message)
	}
	data := Data[T]{
		List:       snap,
		Schema:     h.cfg.Schema,
		DebounceMS: h.deps.Debounce.Milliseconds(),
	}
	name := h.cfg.Rows
	if snap.Failed {
		// Rows already on screen stay visible; only the carried state moves on.
		httpx.Reswap(w, "none")
		name = StateTemplate
	}
	if err := h.deps.Templates.Render(w, name, auth.PageData(r, h.deps.CSRF, h.cfg.Title, data)); err != nil {
		h.deps.Logger.Error("render "+name, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// settlePage moves a request for a page past the end back to the last page.
// Totals are only known after the first fetch, so the check runs afterwards.
func (h *Handler[T]) settlePage(ctx context.Context, ctrl *listview.Controller[T], rec *recorder) error {
	snap := ctrl.Snapshot()
	last := max(snap.Pagination.TotalPages(), 1)
	if !snap.Loaded || snap.Pagination.Page <= last {
		return nil
	}
	rec.Notify(httpx.ToastError, msgNoSuchPage)
	return ctrl.SetPage(ctx, last)
}

func (h *Handler[T]) viewMode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	mode, ok := listview.ParseViewMode(r.PostFormValue("mode"))
	if !ok {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid view mode", "mode must be list or thumbnails")
		return
	}
	ctrl := h.controller(r, &recorder{})
	if err := ctrl.SetViewMode(r.Context(), mode); err != nil {
		httpx.Toast(w, httpx.ToastError, "Could not save your view preference")
	}
	httpx.Trigger(w, "viewModeChanged", map[string]string{"mode": string(mode)})
	w.WriteHeader(http.StatusNoContent)
}

// eventValue reads the submitted value from "value", falling back to the
// field's own name so plain form controls can trigger events.
func eventValue(q url.Values, key string) string {
	if q.Has("value") {
		return q.Get("value")
	}
	return q.Get(key)
}
