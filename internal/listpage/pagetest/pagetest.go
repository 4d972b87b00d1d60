// Package pagetest runs page handlers against an in-memory Redis with a
// signed-in session, for handler tests.
package pagetest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listpage"
	"github.com/wrightcommerce/shopadmin/internal/prefs"
	"github.com/wrightcommerce/shopadmin/internal/shared"
	"github.com/wrightcommerce/shopadmin/internal/view"
)

// Env is a signed-in console backed by miniredis.
type Env struct {
	Mini      *miniredis.Miniredis
	Redis     *redis.Client
	Sessions  *shared.SessionManager
	Prefs     *prefs.Store
	Templates *view.Engine
	Auth      *auth.Handler
	// Identity is stored in every request's session. Set it to nil to act
	// signed out.
	Identity *auth.Identity
	// Expired counts forced sign-outs.
	Expired int
}

// SessionExpired implements auth.ExpiryObserver.
func (e *Env) SessionExpired() { e.Expired++ }

// New builds an Env signed in as user 7.
func New(t *testing.T) *Env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	templates, err := view.NewEngine()
	require.NoError(t, err)

	e := &Env{
		Mini:      mr,
		Redis:     client,
		Sessions:  shared.NewSessionManager(client, "test_session", "secret", time.Hour, false),
		Prefs:     prefs.NewStore(client),
		Templates: templates,
		Identity: &auth.Identity{
			User:       backend.User{ID: 7, Name: "Wanjiru Kamau", Email: "w@shop.test"},
			Token:      "tok-7",
			LoggedInAt: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
		},
	}
	e.Auth = auth.NewHandler(nil, auth.NewService(nil, nil), templates, e.Sessions, shared.NewCSRFManager("csrfsecret")).WithObserver(e)
	return e
}

// Deps returns list page dependencies wired to the Env. The debounce is
// shortened so search events flush quickly.
func (e *Env) Deps() listpage.Deps {
	return listpage.Deps{
		Templates: e.Templates,
		CSRF:      shared.NewCSRFManager("csrfsecret"),
		Prefs:     e.Prefs,
		Expirer:   e.Auth,
		Debounce:  20 * time.Millisecond,
	}
}

// Result is one served request.
type Result struct {
	*httptest.ResponseRecorder
	Session *shared.Session
}

// Body returns the response body.
func (r Result) Body() string { return r.ResponseRecorder.Body.String() }

// Flash pops the queued flash message, if any.
func (r Result) Flash() *shared.FlashMessage { return r.Session.PopFlash() }

// Serve mounts routes under prefix behind RequireUser and serves req.
func (e *Env) Serve(t *testing.T, prefix string, mount func(chi.Router), req *http.Request) Result {
	t.Helper()
	sess, err := e.Sessions.Load(context.Background(), req)
	require.NoError(t, err)
	if e.Identity != nil {
		require.NoError(t, auth.SaveIdentity(sess, e.Identity))
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	r.With(e.Auth.RequireUser).Route(prefix, mount)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return Result{ResponseRecorder: rr, Session: sess}
}

// Get builds a GET request.
func Get(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}

// HTMX marks req as issued by htmx.
func HTMX(req *http.Request) *http.Request {
	req.Header.Set("HX-Request", "true")
	return req
}

// PostForm builds a form POST.
func PostForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// Unauthorized is the error the backend client returns for a 401.
func Unauthorized() error {
	return &backend.Error{Status: http.StatusUnauthorized, Message: "Unauthenticated"}
}
