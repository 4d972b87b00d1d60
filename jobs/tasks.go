package jobs

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/hibiken/asynq"

	"github.com/wrightcommerce/shopadmin/internal/backend"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOrderExport builds a CSV of the orders matching a filter.
	TaskOrderExport = "orders:export"
)

// OrderExportPayload describes one export request. Params holds the backend
// list parameters of the filtered order list, without page and per_page.
type OrderExportPayload struct {
	ExportID string           `json:"export_id"`
	Owner    string           `json:"owner"`
	Params   string           `json:"params"`
	Token    string           `json:"token,omitempty"`
	Cookies  []backend.Cookie `json:"cookies,omitempty"`
}

// Query decodes Params.
func (p OrderExportPayload) Query() (url.Values, error) {
	values, err := url.ParseQuery(p.Params)
	if err != nil {
		return nil, fmt.Errorf("jobs: export params: %w", err)
	}
	return values, nil
}

// Credentials returns the backend credentials the export runs with.
func (p OrderExportPayload) Credentials() backend.Credentials {
	return backend.Credentials{Token: p.Token, Cookies: p.Cookies}
}

// NewOrderExportTask constructs an Asynq task.
func NewOrderExportTask(payload OrderExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderExport, data), nil
}
