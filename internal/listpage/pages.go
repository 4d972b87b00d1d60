package listpage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listview"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/internal/shared"
)

// ErrorPage is rendered for failed full-page loads.
const ErrorPage = "pages/error.html"

// ErrorData feeds ErrorPage.
type ErrorData struct {
	Status  int
	Message string
	Back    string
}

// Fetch adapts a paged backend call to a listview.Fetcher.
func Fetch[T any](fn func(ctx context.Context, params url.Values) (backend.Page[T], error)) listview.Fetcher[T] {
	return listview.FetchFunc[T](func(ctx context.Context, params url.Values) (listview.Result[T], error) {
		page, err := fn(ctx, params)
		return listview.Result[T]{Items: page.Items, Total: page.Total}, err
	})
}

// Search adapts a backend search call to a listview.Searcher.
func Search[T any](fn func(ctx context.Context, query string) (backend.Page[T], error)) listview.Searcher[T] {
	return listview.SearchFunc[T](func(ctx context.Context, query string) (listview.Result[T], error) {
		page, err := fn(ctx, query)
		return listview.Result[T]{Items: page.Items, Total: page.Total}, err
	})
}

// Render writes a page with the shared template envelope.
func (d Deps) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := d.Templates.RenderStatus(w, status, name, auth.PageData(r, d.CSRF, title, data)); err != nil {
		d.logger().Error("render "+name, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Flash queues a message for the next rendered page.
func (d Deps) Flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

// Fail answers a failed backend call. A rejected session signs the user out;
// htmx requests get a toast and everything else the error page.
func (d Deps) Fail(w http.ResponseWriter, r *http.Request, err error, fallback, back string) {
	if errors.Is(err, httpx.ErrUnauthorized) {
		d.Expirer.Expire(w, r)
		return
	}
	status := httpx.StatusFor(err)
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		d.logger().Error(fallback, slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		d.logger().Warn(fallback, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	message := shared.UserSafeMessage(err, fallback)
	if status == http.StatusNotFound {
		message = "We couldn't find that record"
	}
	if httpx.IsHTMX(r) {
		httpx.Toast(w, httpx.ToastError, message)
		w.WriteHeader(status)
		return
	}
	d.Render(w, r, status, ErrorPage, http.StatusText(status), ErrorData{Status: status, Message: message, Back: back})
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
