// Package orders serves the order list, order detail and the CSV export.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listpage"
	"github.com/wrightcommerce/shopadmin/internal/listview"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/jobs"
)

// Order states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Statuses lists every order state in workflow order.
var Statuses = []string{StatusPending, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled}

// PaymentStatuses lists the payment states an order can carry.
var PaymentStatuses = []string{"paid", "unpaid", "partial", "pending"}

// Schema declares the order list.
var Schema = listview.Schema{
	Entity:   "orders",
	Path:     "/orders",
	PageSize: 10,
	Search:   "search",
	Fields: []listview.Field{
		{Key: "search"},
		{Key: "status", Kind: listview.FieldEnum, Options: Statuses},
		{Key: "payment_status", Kind: listview.FieldEnum, Options: PaymentStatuses},
		{Key: "date_from", Kind: listview.FieldDate},
		{Key: "date_to", Kind: listview.FieldDate},
	},
}

// Backend is the part of the REST client the order pages use.
type Backend interface {
	ListOrders(ctx context.Context, params url.Values) (backend.Page[backend.Order], error)
	SearchOrders(ctx context.Context, query string) (backend.Page[backend.Order], error)
	GetOrder(ctx context.Context, id backend.ID) (backend.Order, error)
	UpdateOrderStatus(ctx context.Context, id backend.ID, status string) error
	CancelOrder(ctx context.Context, id backend.ID) error
}

// Exporter queues CSV exports and loads their results.
type Exporter interface {
	EnqueueOrderExport(ctx context.Context, owner string, params url.Values, creds backend.Credentials) (string, error)
	Export(ctx context.Context, id string) (jobs.Export, error)
}

// Handler serves /orders.
type Handler struct {
	deps    listpage.Deps
	api     Backend
	exports Exporter
	list    *listpage.Handler[backend.Order]
}

// NewHandler constructs the order pages. exports may be nil, which hides the
// export action.
func NewHandler(deps listpage.Deps, api Backend, exports Exporter) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	list := listpage.New(deps, listpage.Config[backend.Order]{
		Schema:   Schema,
		Title:    "Orders",
		Page:     "pages/orders.html",
		Rows:     "partials/orders_rows.html",
		Fetcher:  listpage.Fetch(api.ListOrders),
		Searcher: listpage.Search(api.SearchOrders),
		Extra: func(context.Context) (any, error) {
			return listExtra{Statuses: Statuses, PaymentStatuses: PaymentStatuses, Exports: exports != nil}, nil
		},
	})
	return &Handler{deps: deps, api: api, exports: exports, list: list}
}

type listExtra struct {
	Statuses        []string
	PaymentStatuses []string
	Exports         bool
}

// MountRoutes registers the order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	h.list.MountRoutes(r)
	r.Post("/export", h.export)
	r.Get("/exports/{exportID}", h.exportStatus)
	r.Get("/exports/{exportID}/download", h.download)
	r.Get("/{id}", h.show)
	r.Post("/{id}/status", h.updateStatus)
	r.Post("/{id}/cancel", h.cancel)
}

type detailData struct {
	Order     backend.Order
	Statuses  []string
	CanCancel bool
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.api.GetOrder(r.Context(), id)
	if err != nil {
		h.deps.Fail(w, r, err, "Failed to load order", Schema.Path)
		return
	}
	title := "Order " + order.OrderNumber
	h.deps.Render(w, r, http.StatusOK, "pages/order_detail.html", title, detailData{
		Order:     order,
		Statuses:  Statuses,
		CanCancel: Cancellable(order.Status),
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	status := r.PostFormValue("status")
	if !slices.Contains(Statuses, status) {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid status", "status must be one of the order states")
		return
	}
	back := detailPath(id)

	order, err := h.api.GetOrder(r.Context(), id)
	if err != nil {
		h.deps.Fail(w, r, err, "Failed to load order", back)
		return
	}
	if order.Status == status {
		h.deps.Flash(r, httpx.ToastInfo, "Order is already "+status)
		httpx.Redirect(w, r, back)
		return
	}
	if err := h.api.UpdateOrderStatus(r.Context(), id, status); err != nil {
		h.deps.Fail(w, r, err, "Failed to update order status", back)
		return
	}
	h.deps.Logger.Info("order status changed", slog.String("order", id.String()), slog.String("from", order.Status), slog.String("to", status))
	h.deps.Flash(r, httpx.ToastSuccess, "Order status updated to "+status)
	httpx.Redirect(w, r, back)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	back := detailPath(id)
	order, err := h.api.GetOrder(r.Context(), id)
	if err != nil {
		h.deps.Fail(w, r, err, "Failed to load order", back)
		return
	}
	if !Cancellable(order.Status) {
		h.deps.Flash(r, httpx.ToastError, "A "+order.Status+" order cannot be cancelled")
		httpx.Redirect(w, r, back)
		return
	}
	if err := h.api.CancelOrder(r.Context(), id); err != nil {
		h.deps.Fail(w, r, err, "Failed to cancel order", back)
		return
	}
	h.deps.Flash(r, httpx.ToastSuccess, "Order cancelled")
	httpx.Redirect(w, r, back)
}

type exportData struct {
	Export jobs.Export
}

// export queues a CSV of the orders matching the submitted list state.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	state, err := url.ParseQuery(r.PostFormValue("state"))
	if err != nil {
		state = url.Values{}
	}
	ident := auth.IdentityFromContext(r.Context())
	if ident == nil {
		h.deps.Expirer.Expire(w, r)
		return
	}

	exportID, err := h.exports.EnqueueOrderExport(r.Context(), ident.Owner(), ExportParams(state), ident.Credentials())
	if err != nil {
		h.deps.Logger.Error("enqueue order export", slog.Any("error", err))
		httpx.Toast(w, httpx.ToastError, "Could not start the export")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	h.deps.Logger.Info("order export queued", slog.String("export_id", exportID))
	httpx.Toast(w, httpx.ToastInfo, "Preparing your export")
	h.deps.Render(w, r, http.StatusAccepted, "partials/order_export.html", "Orders", exportData{
		Export: jobs.Export{ID: exportID, Status: jobs.ExportPending},
	})
}

func (h *Handler) exportStatus(w http.ResponseWriter, r *http.Request) {
	exp, ok := h.loadExport(w, r)
	if !ok {
		return
	}
	if exp.Ready() {
		httpx.Toast(w, httpx.ToastSuccess, "Your export is ready")
	}
	exp.Data = nil
	h.deps.Render(w, r, http.StatusOK, "partials/order_export.html", "Orders", exportData{Export: exp})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	exp, ok := h.loadExport(w, r)
	if !ok {
		return
	}
	if !exp.Ready() {
		http.Error(w, "export not ready", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Data)))
	_, _ = w.Write(exp.Data)
}

// loadExport returns the export when it belongs to the signed-in user.
func (h *Handler) loadExport(w http.ResponseWriter, r *http.Request) (jobs.Export, bool) {
	if h.exports == nil {
		http.NotFound(w, r)
		return jobs.Export{}, false
	}
	ident := auth.IdentityFromContext(r.Context())
	exp, err := h.exports.Export(r.Context(), chi.URLParam(r, "exportID"))
	if err != nil {
		if !errors.Is(err, jobs.ErrExportNotFound) {
			h.deps.Logger.Error("load export", slog.Any("error", err))
		}
		http.NotFound(w, r)
		return jobs.Export{}, false
	}
	if ident == nil || exp.Owner != ident.Owner() {
		http.NotFound(w, r)
		return jobs.Export{}, false
	}
	return exp, true
}

// ExportParams turns a list URL query into backend filters without paging.
func ExportParams(state url.Values) url.Values {
	filters, _ := Schema.ParseQuery(state)
	params := Schema.BackendParams(filters, listview.PaginationState{Page: 1})
	params.Del("page")
	params.Del("per_page")
	return params
}

// Cancellable reports whether an order in status may still be cancelled.
func Cancellable(status string) bool {
	return status != StatusCompleted && status != StatusCancelled
}

func orderID(w http.ResponseWriter, r *http.Request) (backend.ID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return backend.ID(n), true
}

func detailPath(id backend.ID) string {
	return Schema.Path + "/" + id.String()
}
