package customers_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/customers"
	"github.com/wrightcommerce/shopadmin/internal/listpage/pagetest"
	_ "github.com/wrightcommerce/shopadmin/testing"
)

type fakeCustomers struct {
	mu        sync.Mutex
	customers []backend.Customer
	orders    map[backend.ID][]backend.Order
	failing   map[backend.ID]error
	lookups   []backend.ID
	inflight  atomic.Int32
	peak      atomic.Int32
	getErr    error
}

func (f *fakeCustomers) ListCustomers(context.Context, url.Values) (backend.Page[backend.Customer], error) {
	return backend.Page[backend.Customer]{Items: f.customers, Total: len(f.customers)}, nil
}

func (f *fakeCustomers) SearchCustomers(_ context.Context, query string) (backend.Page[backend.Customer], error) {
	return backend.Page[backend.Customer]{Items: f.customers[:1], Total: 1}, nil
}

func (f *fakeCustomers) GetCustomer(_ context.Context, id backend.ID) (backend.Customer, error) {
	if f.getErr != nil {
		return backend.Customer{}, f.getErr
	}
	for _, c := range f.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return backend.Customer{}, &backend.Error{Status: http.StatusNotFound}
}

func (f *fakeCustomers) CustomerOrders(_ context.Context, id backend.ID) ([]backend.Order, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id)
	if err := f.failing[id]; err != nil {
		return nil, err
	}
	return f.orders[id], nil
}

func amount(v float64) *backend.Amount {
	a := backend.Amount(v)
	return &a
}

func count(v int) *backend.Count {
	c := backend.Count(v)
	return &c
}

func newFake() *fakeCustomers {
	return &fakeCustomers{
		customers: []backend.Customer{
			{ID: 1, Name: "Achieng Otieno", Email: "achieng@example.com"},
			{ID: 2, Name: "Baraka Mwangi"},
			{ID: 3, Name: "Chebet Kiprop", TotalSpent: amount(990), OrderCount: count(3)},
		},
		orders: map[backend.ID][]backend.Order{
			1: {
				{ID: 10, OrderNumber: "ORD-10", Status: "completed", Total: 1500},
				{ID: 11, OrderNumber: "ORD-11", Status: "pending", Total: 500.5},
				{ID: 12, OrderNumber: "ORD-12", Status: "completed", Total: 1000},
			},
		},
		failing: map[backend.ID]error{2: errors.New("timeout")},
	}
}

func TestEnrichFillsMissingAggregates(t *testing.T) {
	api := newFake()
	enrich := customers.Enrich(api, nil)

	out := enrich(context.Background(), api.customers)
	require.Len(t, out, 3)

	assert.Equal(t, backend.Amount(3000.5), out[0].Spent())
	assert.Equal(t, backend.Count(3), out[0].Orders())

	// A failed lookup degrades to zero rather than failing the page.
	require.True(t, out[1].Annotated())
	assert.Equal(t, backend.Amount(0), out[1].Spent())
	assert.Equal(t, backend.Count(0), out[1].Orders())

	// Rows the backend annotated are left alone.
	assert.Equal(t, backend.Amount(990), out[2].Spent())
	assert.ElementsMatch(t, []backend.ID{1, 2}, api.lookups)

	// The input slice is not modified.
	assert.Nil(t, api.customers[0].TotalSpent)
}

func TestEnrichCapsConcurrency(t *testing.T) {
	api := &fakeCustomers{orders: map[backend.ID][]backend.Order{}}
	for i := 1; i <= 15; i++ {
		api.customers = append(api.customers, backend.Customer{ID: backend.ID(i)})
	}
	out := customers.Enrich(api, nil)(context.Background(), api.customers)
	assert.Len(t, out, 15)
	assert.Len(t, api.lookups, 15)
	assert.LessOrEqual(t, api.peak.Load(), int32(5))
}

func TestNewProfile(t *testing.T) {
	api := newFake()
	p := customers.NewProfile(api.customers[0], api.orders[1])
	assert.Equal(t, backend.Amount(3000.5), p.TotalSpent)
	assert.Equal(t, backend.Count(3), p.OrderCount)
	assert.InDelta(t, 1000.1666, p.Average.Float(), 0.001)
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 1, p.Pending)

	empty := customers.NewProfile(api.customers[1], nil)
	assert.Equal(t, backend.Amount(0), empty.Average)
}

func serve(t *testing.T, env *pagetest.Env, h *customers.Handler, req *http.Request) pagetest.Result {
	t.Helper()
	return env.Serve(t, "/customers", func(r chi.Router) { h.MountRoutes(r) }, req)
}

func TestIndexRendersEnrichedRows(t *testing.T) {
	env := pagetest.New(t)
	api := newFake()
	h := customers.NewHandler(env.Deps(), api)

	res := serve(t, env, h, pagetest.Get("/customers"))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body(), "Achieng Otieno")
	assert.Contains(t, res.Body(), "KES 3,000.50")
	assert.Contains(t, res.Body(), "KES 990.00")
}

func TestShowCustomer(t *testing.T) {
	env := pagetest.New(t)
	api := newFake()
	h := customers.NewHandler(env.Deps(), api)

	res := serve(t, env, h, pagetest.Get("/customers/1"))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body(), "ORD-11")
	assert.Contains(t, res.Body(), "KES 3,000.50")
}

func TestShowCustomerFailureRedirects(t *testing.T) {
	env := pagetest.New(t)
	api := newFake()
	api.getErr = &backend.Error{Status: http.StatusInternalServerError}
	h := customers.NewHandler(env.Deps(), api)

	res := serve(t, env, h, pagetest.Get("/customers/1"))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/customers", res.Header().Get("Location"))
	assert.Equal(t, "Failed to load customer", res.Flash().Message)
}

func TestShowCustomerUnauthorized(t *testing.T) {
	env := pagetest.New(t)
	api := newFake()
	api.getErr = pagetest.Unauthorized()
	h := customers.NewHandler(env.Deps(), api)

	res := serve(t, env, h, pagetest.Get("/customers/1"))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login", res.Header().Get("Location"))
	assert.Equal(t, 1, env.Expired)
}
