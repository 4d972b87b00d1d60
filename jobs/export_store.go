package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Export states.
const (
	ExportPending = "pending"
	ExportReady   = "ready"
	ExportFailed  = "failed"
)

// ErrExportNotFound is returned for unknown or expired exports.
var ErrExportNotFound = errors.New("jobs: export not found")

// Export is a generated CSV artefact and its status.
type Export struct {
	ID       string
	Owner    string
	Status   string
	Filename string
	Rows     int
	Data     []byte
	Error    string
}

// Ready reports whether the file can be downloaded.
func (e Export) Ready() bool { return e.Status == ExportReady }

// ExportStore keeps export artefacts in Redis hashes that expire after ttl.
type ExportStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewExportStore constructs an ExportStore.
func NewExportStore(client *redis.Client, ttl time.Duration) *ExportStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ExportStore{client: client, ttl: ttl}
}

func exportKey(id string) string {
	return "export:" + id
}

// Create registers a pending export for owner.
func (s *ExportStore) Create(ctx context.Context, id, owner string) error {
	return s.write(ctx, id, map[string]any{"owner": owner, "status": ExportPending})
}

// Complete stores the finished file.
func (s *ExportStore) Complete(ctx context.Context, id, filename string, rows int, data []byte) error {
	return s.write(ctx, id, map[string]any{
		"status":   ExportReady,
		"filename": filename,
		"rows":     rows,
		"data":     data,
	})
}

// Fail records why an export could not be built.
func (s *ExportStore) Fail(ctx context.Context, id, reason string) error {
	return s.write(ctx, id, map[string]any{"status": ExportFailed, "error": reason})
}

// Get loads an export.
func (s *ExportStore) Get(ctx context.Context, id string) (Export, error) {
	fields, err := s.client.HGetAll(ctx, exportKey(id)).Result()
	if err != nil {
		return Export{}, fmt.Errorf("jobs: load export: %w", err)
	}
	if len(fields) == 0 {
		return Export{}, ErrExportNotFound
	}
	exp := Export{
		ID:       id,
		Owner:    fields["owner"],
		Status:   fields["status"],
		Filename: fields["filename"],
		Data:     []byte(fields["data"]),
		Error:    fields["error"],
	}
	exp.Rows, _ = strconv.Atoi(fields["rows"])
	return exp, nil
}

func (s *ExportStore) write(ctx context.Context, id string, values map[string]any) error {
	key := exportKey(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("jobs: save export: %w", err)
	}
	return nil
}
