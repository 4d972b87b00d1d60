package auth_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/prefs"
	"github.com/wrightcommerce/shopadmin/internal/shared"
	"github.com/wrightcommerce/shopadmin/internal/view"
	_ "github.com/wrightcommerce/shopadmin/testing"
)

type harness struct {
	handler  *auth.Handler
	sessions *shared.SessionManager
	prefs    *prefs.Store
	expired  int
}

func (h *harness) SessionExpired() { h.expired++ }

func newHarness(t *testing.T, api http.HandlerFunc) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client, err := backend.NewClient(backend.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	templates, err := view.NewEngine()
	require.NoError(t, err)

	h := &harness{
		sessions: shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false),
		prefs:    prefs.NewStore(redisClient),
	}
	h.handler = auth.NewHandler(nil, auth.NewService(client, h.prefs), templates, h.sessions, shared.NewCSRFManager("csrfsecret")).WithObserver(h)
	return h
}

// serve runs fn with a session loaded from cookie (if any) and commits it.
func (h *harness) serve(t *testing.T, req *http.Request, cookie *http.Cookie, fn http.HandlerFunc) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()
	w := &committingWriter{ResponseWriter: rr, commit: func() {
		require.NoError(t, h.sessions.Commit(ctx, rr, req, sess))
	}}
	fn(w, req)
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return rr, sess
}

// committingWriter persists the session right before the status line, the
// way the session middleware does.
type committingWriter struct {
	http.ResponseWriter
	commit  func()
	written bool
}

func (w *committingWriter) WriteHeader(status int) {
	if !w.written {
		w.written = true
		w.commit()
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *committingWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func sessionCookie(t *testing.T, h *harness, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	var last *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == h.sessions.CookieName() {
			last = c
		}
	}
	require.NotNil(t, last, "session cookie")
	return last
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func loginBackend(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/login":
		if !strings.Contains(string(body), `"password":"correct-horse"`) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Invalid credentials"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "backend-sess"})
		_, _ = io.WriteString(w, `{"success":true,"data":{"user":{"id":7,"name":"Wanjiru Kamau","email":"w@shop.test"}}}`)
	case "/auth/register":
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"success":false,"message":"Email already registered","errors":{"email":["Email already registered"]}}`)
	case "/auth/logout":
		_, _ = io.WriteString(w, `{"success":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestLoginPage(t *testing.T) {
	h := newHarness(t, loginBackend)
	router := chiRouter(h)

	rr, _ := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil), nil, router.ServeHTTP)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<form")
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, loginBackend)
	router := chiRouter(h)

	rr, _ := h.serve(t, postForm("/auth/login", url.Values{"email": {"w@shop.test"}, "password": {"wrong-pass"}}), nil, router.ServeHTTP)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid email or password")
}

func TestLoginValidation(t *testing.T) {
	h := newHarness(t, loginBackend)
	router := chiRouter(h)

	rr, _ := h.serve(t, postForm("/auth/login", url.Values{"email": {"not-an-email"}}), nil, router.ServeHTTP)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Enter a valid email address")
}

func TestLoginStoresIdentity(t *testing.T) {
	h := newHarness(t, loginBackend)
	router := chiRouter(h)

	rr, sess := h.serve(t, postForm("/auth/login", url.Values{"email": {"w@shop.test"}, "password": {"correct-horse"}}), nil, router.ServeHTTP)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, auth.HomePath, rr.Header().Get("Location"))

	id, ok := auth.LoadIdentity(sess)
	require.True(t, ok)
	assert.Equal(t, "7", id.Owner())
	assert.Equal(t, []backend.Cookie{{Name: "PHPSESSID", Value: "backend-sess"}}, id.Credentials().Cookies)

	var cached backend.User
	found, err := h.prefs.Profile(context.Background(), "7", &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Wanjiru Kamau", cached.Name)

	// The next request sees the identity through the cookie.
	next := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rr2, _ := h.serve(t, next, sessionCookie(t, h, rr), router.ServeHTTP)
	assert.Equal(t, http.StatusSeeOther, rr2.Code)
	assert.Equal(t, auth.HomePath, rr2.Header().Get("Location"))
}

func TestRegisterShowsBackendFieldErrors(t *testing.T) {
	h := newHarness(t, loginBackend)
	router := chiRouter(h)

	form := url.Values{
		"name":                  {"Wanjiru"},
		"email":                 {"w@shop.test"},
		"password":              {"longenough"},
		"password_confirmation": {"longenough"},
	}
	rr, _ := h.serve(t, postForm("/auth/register", form), nil, router.ServeHTTP)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Email already registered")
}

func TestRegisterPasswordMismatch(t *testing.T) {
	h := newHarness(t, loginBackend)
	router := chiRouter(h)

	form := url.Values{
		"name":                  {"Wanjiru"},
		"email":                 {"w@shop.test"},
		"password":              {"longenough"},
		"password_confirmation": {"different1"},
	}
	rr, _ := h.serve(t, postForm("/auth/register", form), nil, router.ServeHTTP)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Password confirmation does not match")
}

func TestRequireUser(t *testing.T) {
	h := newHarness(t, loginBackend)

	var creds backend.Credentials
	protected := h.handler.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds = backend.CredentialsFromContext(r.Context())
		assert.NotNil(t, auth.IdentityFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	rr, _ := h.serve(t, httptest.NewRequest(http.MethodGet, "/orders", nil), nil, protected.ServeHTTP)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, auth.LoginPath, rr.Header().Get("Location"))

	htmxReq := httptest.NewRequest(http.MethodGet, "/orders/rows", nil)
	htmxReq.Header.Set("HX-Request", "true")
	rr, _ = h.serve(t, htmxReq, nil, protected.ServeHTTP)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, auth.LoginPath, rr.Header().Get("HX-Redirect"))

	rr, _ = h.serve(t, httptest.NewRequest(http.MethodGet, "/orders", nil), nil, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, auth.SaveIdentity(shared.SessionFromContext(r.Context()), &auth.Identity{
			User:  backend.User{ID: 7},
			Token: "jwt",
		}))
		protected.ServeHTTP(w, r)
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jwt", creds.Token)
}

func TestExpireSignsOutOnce(t *testing.T) {
	h := newHarness(t, loginBackend)

	_, sess := h.serve(t, httptest.NewRequest(http.MethodGet, "/orders/rows", nil), nil, func(w http.ResponseWriter, r *http.Request) {
		s := shared.SessionFromContext(r.Context())
		require.NoError(t, auth.SaveIdentity(s, &auth.Identity{User: backend.User{ID: 7}}))

		req := r.Clone(r.Context())
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		h.handler.Expire(rec, req)
		assert.Equal(t, auth.LoginPath, rec.Header().Get("HX-Redirect"))

		h.handler.Expire(httptest.NewRecorder(), req)
	})

	_, ok := auth.LoadIdentity(sess)
	assert.False(t, ok)
	assert.Equal(t, 1, h.expired)
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Contains(t, flash.Message, "session has expired")
}

func TestLogoutDestroysSession(t *testing.T) {
	h := newHarness(t, loginBackend)
	router := chiRouter(h)

	rr, _ := h.serve(t, postForm("/auth/login", url.Values{"email": {"w@shop.test"}, "password": {"correct-horse"}}), nil, router.ServeHTTP)
	cookie := sessionCookie(t, h, rr)

	rr, _ = h.serve(t, postForm("/auth/logout", nil), cookie, router.ServeHTTP)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, auth.LoginPath, rr.Header().Get("Location"))
	assert.Equal(t, -1, sessionCookie(t, h, rr).MaxAge)
}
