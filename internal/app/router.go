package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/customers"
	"github.com/wrightcommerce/shopadmin/internal/dashboard"
	"github.com/wrightcommerce/shopadmin/internal/observability"
	"github.com/wrightcommerce/shopadmin/internal/orders"
	"github.com/wrightcommerce/shopadmin/internal/payments"
	"github.com/wrightcommerce/shopadmin/internal/products"
	"github.com/wrightcommerce/shopadmin/internal/settings"
	"github.com/wrightcommerce/shopadmin/internal/shared"
	"github.com/wrightcommerce/shopadmin/jobs"
	"github.com/wrightcommerce/shopadmin/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	ProductsHandler  *products.Handler
	OrdersHandler    *orders.Handler
	CustomersHandler *customers.Handler
	PaymentsHandler  *payments.Handler
	SettingsHandler  *settings.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with the console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.LoadIdentity(shared.SessionFromContext(r.Context())); !ok {
			http.Redirect(w, r, auth.LoginPath, http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, auth.HomePath, http.StatusSeeOther)
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthHandler.RequireUser)
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		r.Route("/products", params.ProductsHandler.MountRoutes)
		r.Route("/orders", params.OrdersHandler.MountRoutes)
		r.Route("/customers", params.CustomersHandler.MountRoutes)
		r.Route("/payments", params.PaymentsHandler.MountRoutes)
		r.Route("/settings", params.SettingsHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}
	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in the browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
