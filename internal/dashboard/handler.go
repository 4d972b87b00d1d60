// Package dashboard renders the landing page: headline counts, revenue from
// the latest orders and a greeting that knows whether this is a first visit.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listpage"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
)

// RecentOrders is how many orders feed the revenue and pending figures.
const RecentOrders = 5

// Backend is the part of the REST client the dashboard reads.
type Backend interface {
	ListProducts(ctx context.Context, params url.Values) (backend.Page[backend.Product], error)
	ListOrders(ctx context.Context, params url.Values) (backend.Page[backend.Order], error)
	ListCustomers(ctx context.Context, params url.Values) (backend.Page[backend.Customer], error)
	LowStockProducts(ctx context.Context) (backend.Page[backend.Product], error)
}

// Visits records dashboard visits per user.
type Visits interface {
	TouchVisit(ctx context.Context, owner string) (time.Time, error)
}

// Summary is what the dashboard shows.
type Summary struct {
	Products  int
	Orders    int
	Customers int
	LowStock  int
	Revenue   backend.Amount
	Pending   int
	Recent    []backend.Order
}

// HasAnyData reports whether the shop has trading history worth celebrating.
func (s Summary) HasAnyData() bool {
	return s.Orders > 0 || s.Revenue > 0
}

// Load fetches the headline numbers in parallel. A low stock failure only
// leaves that count at zero.
func Load(ctx context.Context, api Backend, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var s Summary
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := api.ListProducts(ctx, url.Values{"per_page": {"1"}})
		s.Products = page.Total
		return err
	})
	g.Go(func() error {
		page, err := api.ListOrders(ctx, url.Values{"per_page": {"5"}})
		if err != nil {
			return err
		}
		s.Orders = page.Total
		s.Recent = page.Items
		if len(s.Recent) > RecentOrders {
			s.Recent = s.Recent[:RecentOrders]
		}
		for _, o := range s.Recent {
			s.Revenue += o.Total
			if o.Status == "pending" {
				s.Pending++
			}
		}
		return nil
	})
	g.Go(func() error {
		page, err := api.ListCustomers(ctx, url.Values{"per_page": {"1"}})
		s.Customers = page.Total
		return err
	})
	g.Go(func() error {
		page, err := api.LowStockProducts(ctx)
		if err != nil {
			if errors.Is(err, httpx.ErrUnauthorized) {
				return err
			}
			logger.Warn("dashboard low stock", slog.Any("error", err))
			return nil
		}
		s.LowStock = page.Total
		if s.LowStock == 0 {
			s.LowStock = len(page.Items)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// Data feeds pages/dashboard.html.
type Data struct {
	Summary
	Greeting string
	Name     string
	Error    string
}

// Handler serves /dashboard.
type Handler struct {
	deps   listpage.Deps
	api    Backend
	visits Visits
}

// NewHandler constructs the dashboard. visits may be nil.
func NewHandler(deps listpage.Deps, api Backend, visits Visits) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{deps: deps, api: api, visits: visits}
}

// MountRoutes registers the dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.index)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	data := Data{Greeting: h.greeting(r.Context(), id), Name: "Admin"}
	if id != nil && id.User.Name != "" {
		data.Name = id.User.Name
	}

	summary, err := Load(r.Context(), h.api, h.deps.Logger)
	switch {
	case errors.Is(err, httpx.ErrUnauthorized):
		h.deps.Expirer.Expire(w, r)
		return
	case err != nil:
		h.deps.Logger.Error("load dashboard", slog.Any("error", err))
		data.Error = "Failed to load dashboard data"
	default:
		data.Summary = summary
	}
	h.deps.Render(w, r, http.StatusOK, "pages/dashboard.html", "Dashboard", data)
}

func (h *Handler) greeting(ctx context.Context, id *auth.Identity) string {
	if h.visits == nil || id == nil {
		return "Welcome back"
	}
	prev, err := h.visits.TouchVisit(ctx, id.Owner())
	if err != nil {
		h.deps.Logger.Warn("touch visit", slog.Any("error", err))
		return "Welcome back"
	}
	if prev.IsZero() {
		return "Hello there"
	}
	return "Welcome back"
}
