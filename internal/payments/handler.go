// Package payments serves the payment transaction list and its stats cards.
package payments

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listpage"
	"github.com/wrightcommerce/shopadmin/internal/listview"
)

var (
	// Statuses lists the payment states.
	Statuses = []string{"completed", "unpaid", "partial", "refunded"}
	// Methods lists the accepted payment methods.
	Methods = []string{"mpesa", "paystack", "cash", "bank"}
)

// Schema declares the payment list. The method filter is sent to the backend
// as payment_method.
var Schema = listview.Schema{
	Entity:   "payments",
	Path:     "/payments",
	PageSize: 15,
	Fields: []listview.Field{
		{Key: "status", Kind: listview.FieldEnum, Options: Statuses},
		{Key: "method", Param: "payment_method", Kind: listview.FieldEnum, Options: Methods},
		{Key: "date_from", Kind: listview.FieldDate},
		{Key: "date_to", Kind: listview.FieldDate},
	},
}

// Backend is the part of the REST client the payments page uses.
type Backend interface {
	ListPayments(ctx context.Context, params url.Values) (backend.Page[backend.Payment], error)
	PaymentStats(ctx context.Context) (backend.PaymentStats, error)
}

// Extra is rendered beside the rows. Stats is nil when the stats call failed.
type Extra struct {
	Statuses []string
	Methods  []string
	Stats    *backend.PaymentStats
}

// Handler serves /payments.
type Handler struct {
	list *listpage.Handler[backend.Payment]
}

// NewHandler constructs the payments page.
func NewHandler(deps listpage.Deps, api Backend) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	list := listpage.New(deps, listpage.Config[backend.Payment]{
		Schema:  Schema,
		Title:   "Payments",
		Page:    "pages/payments.html",
		Rows:    "partials/payments_rows.html",
		Fetcher: listpage.Fetch(api.ListPayments),
		Extra: func(ctx context.Context) (any, error) {
			extra := Extra{Statuses: Statuses, Methods: Methods}
			stats, err := api.PaymentStats(ctx)
			if err != nil {
				return extra, err
			}
			extra.Stats = &stats
			return extra, nil
		},
	})
	return &Handler{list: list}
}

// MountRoutes registers the payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	h.list.MountRoutes(r)
}
