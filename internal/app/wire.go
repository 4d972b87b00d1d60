package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/customers"
	"github.com/wrightcommerce/shopadmin/internal/dashboard"
	"github.com/wrightcommerce/shopadmin/internal/listpage"
	"github.com/wrightcommerce/shopadmin/internal/observability"
	"github.com/wrightcommerce/shopadmin/internal/orders"
	"github.com/wrightcommerce/shopadmin/internal/payments"
	"github.com/wrightcommerce/shopadmin/internal/platform/cache"
	"github.com/wrightcommerce/shopadmin/internal/prefs"
	"github.com/wrightcommerce/shopadmin/internal/products"
	"github.com/wrightcommerce/shopadmin/internal/settings"
	"github.com/wrightcommerce/shopadmin/internal/shared"
	"github.com/wrightcommerce/shopadmin/internal/view"
	"github.com/wrightcommerce/shopadmin/jobs"
)

// SessionCookie names the console session cookie.
const SessionCookie = "shopadmin_session"

// Infra carries the connections the console is built on.
type Infra struct {
	Redis *redis.Client
	// Enqueuer submits export tasks. Nil disables exports.
	Enqueuer jobs.Enqueuer
	// Inspector backs /jobs/health. Nil answers with an empty queue.
	Inspector *asynq.Inspector
	Metrics   *observability.Metrics
	// HTTPClient overrides the backend transport, for tests.
	HTTPClient *http.Client
}

// NewBackend builds the commerce API client from cfg.
func NewBackend(cfg *Config, logger *slog.Logger, metrics *observability.Metrics, httpClient *http.Client) (*backend.Client, error) {
	return backend.NewClient(backend.Config{
		BaseURL:        cfg.BackendURL,
		Timeout:        cfg.BackendTimeout,
		MethodOverride: cfg.BackendMethodOverride,
		Logger:         logger,
		Observer:       metrics,
		HTTPClient:     httpClient,
	})
}

// NewHandler wires every page onto one router.
func NewHandler(cfg *Config, logger *slog.Logger, infra Infra) (http.Handler, error) {
	if infra.Redis == nil {
		return nil, fmt.Errorf("app: redis client is required")
	}
	api, err := NewBackend(cfg, logger, infra.Metrics, infra.HTTPClient)
	if err != nil {
		return nil, err
	}
	templates, err := view.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("app: parse templates: %w", err)
	}

	sessionManager := shared.NewSessionManager(infra.Redis, SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	prefStore := prefs.NewStore(infra.Redis)

	authHandler := auth.NewHandler(logger, auth.NewService(api, prefStore), templates, sessionManager, csrfManager).
		WithObserver(infra.Metrics).
		WithLoginLimit(cfg.LoginRateLimit)

	deps := listpage.Deps{
		Logger:    logger,
		Templates: templates,
		CSRF:      csrfManager,
		Prefs:     prefStore,
		Expirer:   authHandler,
		Debounce:  cfg.ListSearchDebounce,
	}

	var exports orders.Exporter
	if infra.Enqueuer != nil {
		exports = jobs.NewClientWith(infra.Enqueuer, jobs.NewExportStore(infra.Redis, cfg.ExportTTL)).
			WithDedupe(shared.NewIdempotencyStore(infra.Redis))
	}

	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		DashboardHandler: dashboard.NewHandler(deps, api, prefStore),
		ProductsHandler:  products.NewHandler(deps, api, cache.NewJSON(infra.Redis, "products", cfg.CategoryCacheTTL)),
		OrdersHandler:    orders.NewHandler(deps, api, exports),
		CustomersHandler: customers.NewHandler(deps, api),
		PaymentsHandler:  payments.NewHandler(deps, api),
		SettingsHandler:  settings.NewHandler(deps, api, prefStore),
		JobHandler:       jobs.NewHandler(infra.Inspector, logger),
		Metrics:          infra.Metrics,
	}), nil
}
