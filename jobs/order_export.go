package jobs

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	jobmetrics "github.com/wrightcommerce/shopadmin/internal/jobs"
)

const (
	exportPageSize = 100
	exportMaxPages = 200
)

var exportHeader = []string{
	"Order Number", "Date", "Customer", "Email", "Status", "Payment Status", "Payment Method", "Total",
}

// OrderLister pages through orders.
type OrderLister interface {
	ListOrders(ctx context.Context, params url.Values) (backend.Page[backend.Order], error)
}

// OrderExportJob renders the filtered order list into a CSV file.
type OrderExportJob struct {
	Orders  OrderLister
	Store   *ExportStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOrderExportJob initialises the export handler.
func NewOrderExportJob(orders OrderLister, store *ExportStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *OrderExportJob {
	return &OrderExportJob{
		Orders:  orders,
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one export.
func (j *OrderExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Orders == nil || j.Store == nil {
		return errors.New("order export: handler not configured")
	}
	var payload OrderExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ExportID == "" {
		return asynq.SkipRetry
	}
	params, err := payload.Query()
	if err != nil {
		_ = j.Store.Fail(ctx, payload.ExportID, "Invalid export filters")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	tracker := j.metrics().Track(TaskOrderExport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("export_id", payload.ExportID), slog.String("owner", payload.Owner))
	logger.Info("starting order export")

	ctx = backend.ContextWithCredentials(ctx, payload.Credentials())
	data, rows, err := j.build(ctx, params)
	if err != nil {
		resultErr = err
		if backend.IsUnauthorized(err) {
			_ = j.Store.Fail(ctx, payload.ExportID, "Your session expired before the export finished")
			logger.Warn("order export unauthorised")
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		if lastAttempt(ctx) {
			_ = j.Store.Fail(ctx, payload.ExportID, "Export failed")
		}
		logger.Error("order export failed", slog.Any("error", err))
		return resultErr
	}

	filename := "orders-" + j.now().Format("20060102-150405") + ".csv"
	if err := j.Store.Complete(ctx, payload.ExportID, filename, rows, data); err != nil {
		resultErr = err
		return resultErr
	}
	j.metrics().AddRows(TaskOrderExport, rows)
	logger.Info("order export complete", slog.Int("rows", rows))
	return nil
}

func (j *OrderExportJob) build(ctx context.Context, filters url.Values) ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, 0, err
	}

	rows := 0
	for page := 1; page <= exportMaxPages; page++ {
		params := url.Values{}
		for k, v := range filters {
			params[k] = v
		}
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(exportPageSize))

		result, err := j.Orders.ListOrders(ctx, params)
		if err != nil {
			return nil, 0, err
		}
		for _, o := range result.Items {
			record := []string{
				o.OrderNumber,
				formatExportTime(o.CreatedAt),
				o.BuyerName(),
				o.BuyerEmail(),
				o.Status,
				o.PaymentLabel(),
				o.PaymentMethod,
				strconv.FormatFloat(o.Total.Float(), 'f', 2, 64),
			}
			if err := w.Write(record); err != nil {
				return nil, 0, err
			}
			rows++
		}
		if len(result.Items) < exportPageSize || (result.Total > 0 && rows >= result.Total) {
			break
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), rows, nil
}

func formatExportTime(ts backend.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format("2006-01-02 15:04")
}

func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (j *OrderExportJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *OrderExportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *OrderExportJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
