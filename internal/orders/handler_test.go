package orders_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listpage/pagetest"
	"github.com/wrightcommerce/shopadmin/internal/orders"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/jobs"
	_ "github.com/wrightcommerce/shopadmin/testing"
)

type fakeOrders struct {
	mu       sync.Mutex
	orders   map[backend.ID]backend.Order
	list     backend.Page[backend.Order]
	listErr  error
	params   []url.Values
	searches []string
	updates  []string
	cancels  []backend.ID
}

func newFakeOrders() *fakeOrders {
	o := backend.Order{
		ID:           12,
		OrderNumber:  "ORD-0012",
		CustomerName: "Achieng Otieno",
		Status:       orders.StatusPending,
		Total:        4200,
		CreatedAt:    backend.Timestamp{Time: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
		Items:        []backend.OrderItem{{ProductName: "Kikoy", Quantity: 2, Price: 2100, Subtotal: 4200}},
	}
	return &fakeOrders{
		orders: map[backend.ID]backend.Order{o.ID: o},
		list:   backend.Page[backend.Order]{Items: []backend.Order{o}, Total: 23},
	}
}

func (f *fakeOrders) ListOrders(_ context.Context, params url.Values) (backend.Page[backend.Order], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	return f.list, f.listErr
}

func (f *fakeOrders) SearchOrders(_ context.Context, query string) (backend.Page[backend.Order], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return backend.Page[backend.Order]{Items: f.list.Items, Total: len(f.list.Items)}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id backend.ID) (backend.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return backend.Order{}, &backend.Error{Status: http.StatusNotFound, Message: "Order not found"}
	}
	return o, nil
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, id backend.ID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, status)
	o := f.orders[id]
	o.Status = status
	f.orders[id] = o
	return nil
}

func (f *fakeOrders) CancelOrder(_ context.Context, id backend.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	return nil
}

type fakeExporter struct {
	exports map[string]jobs.Export
	owner   string
	params  url.Values
	creds   backend.Credentials
}

func (f *fakeExporter) EnqueueOrderExport(_ context.Context, owner string, params url.Values, creds backend.Credentials) (string, error) {
	f.owner, f.params, f.creds = owner, params, creds
	return "exp-1", nil
}

func (f *fakeExporter) Export(_ context.Context, id string) (jobs.Export, error) {
	exp, ok := f.exports[id]
	if !ok {
		return jobs.Export{}, jobs.ErrExportNotFound
	}
	return exp, nil
}

type fixture struct {
	env     *pagetest.Env
	api     *fakeOrders
	exports *fakeExporter
	handler *orders.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := pagetest.New(t)
	api := newFakeOrders()
	exports := &fakeExporter{exports: map[string]jobs.Export{}}
	return &fixture{env: env, api: api, exports: exports, handler: orders.NewHandler(env.Deps(), api, exports)}
}

func (f *fixture) serve(t *testing.T, req *http.Request) pagetest.Result {
	t.Helper()
	return f.env.Serve(t, "/orders", func(r chi.Router) { f.handler.MountRoutes(r) }, req)
}

func TestIndexAppliesURLFilters(t *testing.T) {
	f := newFixture(t)
	res := f.serve(t, pagetest.Get("/orders?status=shipped&payment_status=paid&page=2&bogus=1"))

	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, f.api.params, 1)
	params := f.api.params[0]
	assert.Equal(t, "shipped", params.Get("status"))
	assert.Equal(t, "paid", params.Get("payment_status"))
	assert.Equal(t, "2", params.Get("page"))
	assert.Equal(t, "10", params.Get("per_page"))
	assert.False(t, params.Has("bogus"))
	assert.Contains(t, res.Body(), "ORD-0012")
	assert.Contains(t, res.Body(), "KES 4,200.00")
}

func TestRowsFilterEventResetsPage(t *testing.T) {
	f := newFixture(t)
	q := url.Values{
		"event": {"filter"},
		"key":   {"status"},
		"value": {"completed"},
		"state": {"page=3&payment_status=paid"},
	}
	res := f.serve(t, pagetest.HTMX(pagetest.Get("/orders/rows?"+q.Encode())))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "/orders?payment_status=paid&status=completed", res.Header().Get("HX-Replace-Url"))
	require.Len(t, f.api.params, 1)
	assert.Equal(t, "1", f.api.params[0].Get("page"))
	assert.Equal(t, "completed", f.api.params[0].Get("status"))
}

func TestRowsSearchUsesSearchEndpoint(t *testing.T) {
	f := newFixture(t)
	q := url.Values{"event": {"search"}, "search": {"ORD-0012"}, "state": {"status=pending"}}
	res := f.serve(t, pagetest.HTMX(pagetest.Get("/orders/rows?"+q.Encode())))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"ORD-0012"}, f.api.searches)
	assert.Empty(t, f.api.params)
	assert.Equal(t, "/orders?search=ORD-0012&status=pending", res.Header().Get("HX-Replace-Url"))
}

func TestRowsFailureKeepsVisibleRows(t *testing.T) {
	f := newFixture(t)
	f.api.listErr = &backend.Error{Status: http.StatusInternalServerError}
	q := url.Values{"event": {"page"}, "value": {"2"}, "state": {""}}
	res := f.serve(t, pagetest.HTMX(pagetest.Get("/orders/rows?"+q.Encode())))

	assert.Equal(t, "none", res.Header().Get("HX-Reswap"))
	assert.Contains(t, res.Header().Get("HX-Trigger"), "Failed to load orders")
	assert.Contains(t, res.Body(), `hx-swap-oob="true"`)
	assert.NotContains(t, res.Body(), "<table")
}

func TestRowsUnauthorizedExpiresOnce(t *testing.T) {
	f := newFixture(t)
	f.api.listErr = pagetest.Unauthorized()
	res := f.serve(t, pagetest.HTMX(pagetest.Get("/orders/rows?event=refresh")))

	assert.Equal(t, "/auth/login", res.Header().Get("HX-Redirect"))
	assert.Equal(t, 1, f.env.Expired)
}

func TestShowRendersOrder(t *testing.T) {
	f := newFixture(t)
	res := f.serve(t, pagetest.Get("/orders/12"))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body(), "Order ORD-0012")
	assert.Contains(t, res.Body(), "Kikoy")
	assert.Contains(t, res.Body(), "Cancel order")
}

func TestShowMissingOrder(t *testing.T) {
	f := newFixture(t)
	res := f.serve(t, pagetest.Get("/orders/99"))
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body(), "find that record")
}

func TestUpdateStatusSkipsUnchanged(t *testing.T) {
	f := newFixture(t)
	res := f.serve(t, pagetest.PostForm("/orders/12/status", url.Values{"status": {"pending"}}))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/orders/12", res.Header().Get("Location"))
	assert.Empty(t, f.api.updates)
	flash := res.Flash()
	require.NotNil(t, flash)
	assert.Equal(t, httpx.ToastInfo, flash.Kind)
}

func TestUpdateStatusApplies(t *testing.T) {
	f := newFixture(t)
	res := f.serve(t, pagetest.PostForm("/orders/12/status", url.Values{"status": {"shipped"}}))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, []string{"shipped"}, f.api.updates)
	assert.Equal(t, "Order status updated to shipped", res.Flash().Message)
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	f := newFixture(t)
	res := f.serve(t, pagetest.PostForm("/orders/12/status", url.Values{"status": {"lost"}}))
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Empty(t, f.api.updates)
}

func TestCancelRefusesCompletedOrder(t *testing.T) {
	f := newFixture(t)
	o := f.api.orders[12]
	o.Status = orders.StatusCompleted
	f.api.orders[12] = o

	res := f.serve(t, pagetest.PostForm("/orders/12/cancel", url.Values{}))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Empty(t, f.api.cancels)
	assert.Equal(t, httpx.ToastError, res.Flash().Kind)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	res := f.serve(t, pagetest.HTMX(pagetest.PostForm("/orders/12/cancel", url.Values{})))
	assert.Equal(t, "/orders/12", res.Header().Get("HX-Redirect"))
	assert.Equal(t, []backend.ID{12}, f.api.cancels)
}

func TestExportQueuesWithListFilters(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"state": {"status=shipped&page=4&date_from=2026-01-01"}}
	res := f.serve(t, pagetest.HTMX(pagetest.PostForm("/orders/export", form)))

	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.Equal(t, "7", f.exports.owner)
	assert.Equal(t, "tok-7", f.exports.creds.Token)
	assert.Equal(t, url.Values{"status": {"shipped"}, "date_from": {"2026-01-01"}}, f.exports.params)
	assert.Contains(t, res.Body(), `hx-get="/orders/exports/exp-1"`)
}

func TestExportDownloadChecksOwner(t *testing.T) {
	f := newFixture(t)
	f.exports.exports["mine"] = jobs.Export{ID: "mine", Owner: "7", Status: jobs.ExportReady, Filename: "orders.csv", Data: []byte("Order Number\n")}
	f.exports.exports["theirs"] = jobs.Export{ID: "theirs", Owner: "8", Status: jobs.ExportReady, Data: []byte("x")}

	res := f.serve(t, pagetest.Get("/orders/exports/mine/download"))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header().Get("Content-Type"))
	assert.Contains(t, res.Header().Get("Content-Disposition"), "orders.csv")
	assert.Equal(t, "Order Number\n", res.Body())

	res = f.serve(t, pagetest.Get("/orders/exports/theirs/download"))
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestExportStatusPending(t *testing.T) {
	f := newFixture(t)
	f.exports.exports["mine"] = jobs.Export{ID: "mine", Owner: "7", Status: jobs.ExportPending}
	res := f.serve(t, pagetest.HTMX(pagetest.Get("/orders/exports/mine")))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body(), "Preparing export")

	res = f.serve(t, pagetest.Get("/orders/exports/mine/download"))
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestCancellable(t *testing.T) {
	assert.True(t, orders.Cancellable(orders.StatusPending))
	assert.True(t, orders.Cancellable(orders.StatusShipped))
	assert.False(t, orders.Cancellable(orders.StatusCompleted))
	assert.False(t, orders.Cancellable(orders.StatusCancelled))
}
