package app_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightcommerce/shopadmin/internal/app"
	"github.com/wrightcommerce/shopadmin/internal/observability"
	_ "github.com/wrightcommerce/shopadmin/testing"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type commerceAPI struct {
	mu           sync.Mutex
	auth         []string
	rejectCustom bool
}

func (a *commerceAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.auth = append(a.auth, r.Header.Get("Authorization"))
	reject := a.rejectCustom
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/auth/login":
		_, _ = io.WriteString(w, `{"success":true,"data":{"user":{"id":3,"name":"Njeri Wambui","email":"n@shop.test"},"token":"jwt-1"}}`)
	case r.URL.Path == "/api/v1/products/low-stock":
		_, _ = io.WriteString(w, `{"success":true,"data":[]}`)
	case r.URL.Path == "/api/v1/products":
		_, _ = io.WriteString(w, `{"success":true,"data":{"items":[],"pagination":{"total":4}}}`)
	case r.URL.Path == "/api/v1/orders":
		_, _ = io.WriteString(w, `{"success":true,"data":{"items":[
			{"id":12,"order_number":"ORD-12","total":"1500.50","status":"pending","customer_name":"Akinyi","created_at":"2026-02-01 10:30:00"}
		],"pagination":{"total":1}}}`)
	case strings.HasPrefix(r.URL.Path, "/api/v1/customers"):
		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Unauthenticated"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"items":[],"pagination":{"total":2}}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success":false,"message":"not found"}`)
	}
}

func (a *commerceAPI) lastAuth() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.auth) == 0 {
		return ""
	}
	return a.auth[len(a.auth)-1]
}

type console struct {
	server *httptest.Server
	client *http.Client
	api    *commerceAPI
}

func newConsole(t *testing.T) *console {
	t.Helper()
	api := &commerceAPI{}
	backendSrv := httptest.NewServer(api)
	t.Cleanup(backendSrv.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	cfg := &app.Config{
		AppEnv:             "test",
		AppRequestTimeout:  5 * time.Second,
		SessionSecret:      "session-secret",
		SessionTTL:         time.Hour,
		CSRFSecret:         "csrf-secret",
		BackendURL:         backendSrv.URL,
		BackendTimeout:     2 * time.Second,
		ListSearchDebounce: 20 * time.Millisecond,
		CategoryCacheTTL:   time.Minute,
		ExportTTL:          time.Hour,
		RateLimitPerMinute: 1000,
		LoginRateLimit:     100,
	}
	handler, err := app.NewHandler(cfg, slog.New(slog.DiscardHandler), app.Infra{
		Redis:   redisClient,
		Metrics: observability.NewMetrics(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &console{server: srv, client: &http.Client{Jar: jar}, api: api}
}

func (c *console) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	res, err := c.client.Get(c.server.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func (c *console) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	res, err := c.client.PostForm(c.server.URL+path, form)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func (c *console) signIn(t *testing.T) string {
	t.Helper()
	_, page := c.get(t, "/auth/login")
	m := csrfPattern.FindStringSubmatch(page)
	require.Len(t, m, 2, "login page carries a csrf token")
	res, body := c.post(t, "/auth/login", url.Values{
		"csrf_token": {m[1]},
		"email":      {"n@shop.test"},
		"password":   {"secret123"},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "/dashboard", res.Request.URL.Path)
	return body
}

func TestSignedOutVisitorsLandOnLogin(t *testing.T) {
	c := newConsole(t)

	res, body := c.get(t, "/orders")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "/auth/login", res.Request.URL.Path)
	assert.Contains(t, body, "<form")
	assert.Contains(t, res.Header.Get("Content-Security-Policy"), "https://unpkg.com")
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
}

func TestSignInReachesDashboard(t *testing.T) {
	c := newConsole(t)
	body := c.signIn(t)

	assert.Contains(t, body, "Hello there, Njeri Wambui!")
	assert.Contains(t, body, "ORD-12")
	assert.Equal(t, "Bearer jwt-1", c.api.lastAuth())

	_, again := c.get(t, "/dashboard")
	assert.Contains(t, again, "Welcome back, Njeri Wambui!")
}

func TestListPageCarriesCredentials(t *testing.T) {
	c := newConsole(t)
	c.signIn(t)

	res, body := c.get(t, "/orders?status=pending")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "ORD-12")
	assert.Equal(t, "Bearer jwt-1", c.api.lastAuth())
}

func TestBackendRejectionSignsOut(t *testing.T) {
	c := newConsole(t)
	c.signIn(t)
	c.api.mu.Lock()
	c.api.rejectCustom = true
	c.api.mu.Unlock()

	res, body := c.get(t, "/customers")
	assert.Equal(t, "/auth/login", res.Request.URL.Path)
	assert.Contains(t, body, "Your session has expired")

	res, _ = c.get(t, "/dashboard")
	assert.Equal(t, "/auth/login", res.Request.URL.Path)
}

func TestPostWithoutCSRFIsForbidden(t *testing.T) {
	c := newConsole(t)
	c.signIn(t)

	res, _ := c.post(t, "/settings/notifications", url.Values{"email_new_order": {"1"}})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestStaticAssetsAreCached(t *testing.T) {
	c := newConsole(t)

	res, body := c.get(t, "/static/js/app.js")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "public, max-age=3600", res.Header.Get("Cache-Control"))
	assert.Contains(t, body, "showToast")
}

func TestMetricsExposeBackendCalls(t *testing.T) {
	c := newConsole(t)
	c.signIn(t)

	_, body := c.get(t, "/metrics")
	assert.Contains(t, body, "shopadmin_backend_requests_total")
	assert.Contains(t, body, `endpoint="auth.login"`)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	c := newConsole(t)

	res, body := c.get(t, "/jobs/health")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, body)
}
