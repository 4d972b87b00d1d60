package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/internal/shared"
)

// Worker wraps the Asynq server that runs export tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if len(cfg.Handlers) == 0 {
		return nil, errors.New("worker: no task handlers")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn("task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	return &Worker{server: srv, mux: mux, logger: logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Enqueuer is the part of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// exportDedupeWindow is how long an identical export request from the same
// owner returns the export already queued.
const exportDedupeWindow = 30 * time.Second

// Client submits jobs to the queue and reads back their artefacts.
type Client struct {
	client Enqueuer
	store  *ExportStore
	dedupe *shared.IdempotencyStore
	newID  func() string
}

// NewClientWith wraps an existing enqueuer.
func NewClientWith(enqueuer Enqueuer, store *ExportStore) *Client {
	return &Client{client: enqueuer, store: store, newID: uuid.NewString}
}

// WithDedupe collapses repeated identical export requests onto one export.
func (c *Client) WithDedupe(store *shared.IdempotencyStore) *Client {
	c.dedupe = store
	return c
}

// EnqueueOrderExport registers a pending export for owner and queues the job
// that fills it. params are the backend list filters.
func (c *Client) EnqueueOrderExport(ctx context.Context, owner string, params url.Values, creds backend.Credentials) (string, error) {
	id := c.newID()
	dedupeKey := owner + "|" + params.Encode()
	if c.dedupe != nil {
		existing, err := c.dedupe.Claim(ctx, TaskOrderExport, dedupeKey, id, exportDedupeWindow)
		switch {
		case errors.Is(err, shared.ErrIdempotencyConflict) && existing != "":
			return existing, nil
		case err != nil && !errors.Is(err, shared.ErrIdempotencyConflict):
			return "", err
		}
	}
	release := func() {
		if c.dedupe != nil {
			_ = c.dedupe.Delete(ctx, TaskOrderExport, dedupeKey)
		}
	}
	if err := c.store.Create(ctx, id, owner); err != nil {
		release()
		return "", err
	}
	task, err := NewOrderExportTask(OrderExportPayload{
		ExportID: id,
		Owner:    owner,
		Params:   params.Encode(),
		Token:    creds.Token,
		Cookies:  creds.Cookies,
	})
	if err != nil {
		release()
		return "", err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)); err != nil {
		release()
		_ = c.store.Fail(ctx, id, "Could not queue the export")
		return "", err
	}
	return id, nil
}

// Export loads an export artefact.
func (c *Client) Export(ctx context.Context, id string) (Export, error) {
	return c.store.Get(ctx, id)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := queueHealth{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "could not inspect the export queue")
		return
	}
	if info != nil {
		out.Pending = info.Pending
		out.Queue = info.Queue
	}
	httpx.JSON(w, http.StatusOK, out)
}
