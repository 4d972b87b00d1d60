// Package customers serves the customer list and customer profiles.
package customers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listpage"
	"github.com/wrightcommerce/shopadmin/internal/listview"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
)

// enrichLimit caps concurrent order lookups while annotating one page.
const enrichLimit = 5

// Schema declares the customer list.
var Schema = listview.Schema{
	Entity:   "customers",
	Path:     "/customers",
	PageSize: 15,
	Search:   "search",
	Fields: []listview.Field{
		{Key: "search"},
		{Key: "date_from", Kind: listview.FieldDate},
		{Key: "date_to", Kind: listview.FieldDate},
	},
}

// Backend is the part of the REST client the customer pages use.
type Backend interface {
	ListCustomers(ctx context.Context, params url.Values) (backend.Page[backend.Customer], error)
	SearchCustomers(ctx context.Context, query string) (backend.Page[backend.Customer], error)
	GetCustomer(ctx context.Context, id backend.ID) (backend.Customer, error)
	CustomerOrders(ctx context.Context, id backend.ID) ([]backend.Order, error)
}

// Handler serves /customers.
type Handler struct {
	deps listpage.Deps
	api  Backend
	list *listpage.Handler[backend.Customer]
}

// NewHandler constructs the customer pages.
func NewHandler(deps listpage.Deps, api Backend) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	list := listpage.New(deps, listpage.Config[backend.Customer]{
		Schema:   Schema,
		Title:    "Customers",
		Page:     "pages/customers.html",
		Rows:     "partials/customers_rows.html",
		Fetcher:  listpage.Fetch(api.ListCustomers),
		Searcher: listpage.Search(api.SearchCustomers),
		Enricher: Enrich(api, deps.Logger),
	})
	return &Handler{deps: deps, api: api, list: list}
}

// MountRoutes registers the customer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	h.list.MountRoutes(r)
	r.Get("/{id}", h.show)
}

// Enrich fills TotalSpent and OrderCount for rows the backend left
// unannotated, with one order lookup per row. A failed lookup yields zero
// for both.
func Enrich(api Backend, logger *slog.Logger) listview.Enricher[backend.Customer] {
	return func(ctx context.Context, items []backend.Customer) []backend.Customer {
		out := make([]backend.Customer, len(items))
		copy(out, items)

		var g errgroup.Group
		g.SetLimit(enrichLimit)
		for i := range out {
			if out[i].Annotated() {
				continue
			}
			g.Go(func() error {
				var (
					spent backend.Amount
					count backend.Count
				)
				orders, err := api.CustomerOrders(ctx, out[i].ID)
				if err != nil {
					if !errors.Is(err, httpx.ErrUnauthorized) && logger != nil {
						logger.Warn("customer aggregates", slog.String("customer", out[i].ID.String()), slog.Any("error", err))
					}
				} else {
					spent, count = Totals(orders)
				}
				out[i].TotalSpent = &spent
				out[i].OrderCount = &count
				return nil
			})
		}
		_ = g.Wait()
		return out
	}
}

// Totals sums order totals and counts orders.
func Totals(orders []backend.Order) (backend.Amount, backend.Count) {
	var spent backend.Amount
	for _, o := range orders {
		spent += o.Total
	}
	return spent, backend.Count(len(orders))
}

// Profile summarises one customer's order history.
type Profile struct {
	Customer   backend.Customer
	Orders     []backend.Order
	TotalSpent backend.Amount
	OrderCount backend.Count
	Average    backend.Amount
	Completed  int
	Pending    int
}

// NewProfile computes the profile stats from orders.
func NewProfile(c backend.Customer, orders []backend.Order) Profile {
	p := Profile{Customer: c, Orders: orders}
	p.TotalSpent, p.OrderCount = Totals(orders)
	if p.OrderCount > 0 {
		p.Average = p.TotalSpent / backend.Amount(p.OrderCount)
	}
	for _, o := range orders {
		switch o.Status {
		case "completed":
			p.Completed++
		case "pending":
			p.Pending++
		}
	}
	return p
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		http.NotFound(w, r)
		return
	}
	id := backend.ID(n)

	var (
		customer backend.Customer
		orders   []backend.Order
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		customer, err = h.api.GetCustomer(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = h.api.CustomerOrders(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, httpx.ErrUnauthorized) {
			h.deps.Expirer.Expire(w, r)
			return
		}
		h.deps.Logger.Warn("load customer", slog.String("customer", id.String()), slog.Any("error", err))
		h.deps.Flash(r, httpx.ToastError, "Failed to load customer")
		httpx.Redirect(w, r, Schema.Path)
		return
	}
	h.deps.Render(w, r, http.StatusOK, "pages/customer_detail.html", customer.Name, NewProfile(customer, orders))
}
