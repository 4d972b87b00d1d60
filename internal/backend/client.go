// Package backend is the HTTP client for the WrightCommerce REST API. Every
// call carries the caller's backend credentials from the context, unwraps the
// {success, message, data} envelope and maps failure statuses onto the httpx
// sentinel errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
)

const maxResponseBytes = 8 << 20

// methodOverrideField is the body field carrying the real verb when method
// override is enabled.
const methodOverrideField = "_method"

// Observer records backend call metrics.
type Observer interface {
	ObserveBackend(endpoint string, status int, elapsed time.Duration)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// MethodOverride sends PUT, PATCH and DELETE as POST with a _method field
	// for deployments whose proxy only forwards GET and POST.
	MethodOverride bool
	UserAgent      string
	Logger         *slog.Logger
	Observer       Observer
	HTTPClient     *http.Client
}

// Client talks to the backend API.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	methodOverride bool
	userAgent      string
	logger         *slog.Logger
	observer       Observer
}

// NewClient constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: base url %q must be absolute", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "shopadmin"
	}
	return &Client{
		baseURL:        base,
		http:           httpClient,
		methodOverride: cfg.MethodOverride,
		userAgent:      userAgent,
		logger:         logger,
		observer:       cfg.Observer,
	}, nil
}

// Error is a non-success backend response.
type Error struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// Unwrap maps the status onto the httpx sentinels.
func (e *Error) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return httpx.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return httpx.ErrForbidden
	case e.Status == http.StatusNotFound:
		return httpx.ErrNotFound
	case e.Status == http.StatusConflict:
		return httpx.ErrDuplicate
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return httpx.ErrValidation
	case e.Status >= 500:
		return httpx.ErrUnavailable
	default:
		return nil
	}
}

// UserMessage exposes the backend message for client errors. Server errors
// keep their details out of the page.
func (e *Error) UserMessage() string {
	if e.Status >= 500 {
		return ""
	}
	return e.Message
}

// Page is one page of a collection.
type Page[T any] struct {
	Items []T
	Total int
}

// File is an upload attached to a multipart request.
type File struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// multipartBody marks a request body to be sent as multipart/form-data.
type multipartBody struct {
	fields map[string]string
	files  []File
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

type listData[T any] struct {
	Items      []T `json:"items"`
	Pagination struct {
		Total Count `json:"total"`
	} `json:"pagination"`
	Total *Count `json:"total"`
}

type call struct {
	method   string
	path     string
	query    url.Values
	body     any
	endpoint string
}

type response struct {
	status  int
	data    json.RawMessage
	cookies []*http.Cookie
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	res, err := c.do(ctx, call{method: http.MethodGet, path: path, query: query, endpoint: endpoint})
	if err != nil {
		return err
	}
	return res.into(out)
}

func (c *Client) send(ctx context.Context, endpoint, method, path string, body, out any) error {
	res, err := c.do(ctx, call{method: method, path: path, body: body, endpoint: endpoint})
	if err != nil {
		return err
	}
	return res.into(out)
}

func (r *response) into(out any) error {
	if out == nil || isNull(bytes.TrimSpace(r.data)) {
		return nil
	}
	if err := json.Unmarshal(r.data, out); err != nil {
		return fmt.Errorf("backend: decode payload: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, in call) (*response, error) {
	req, err := c.newRequest(ctx, in)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(in.endpoint, 0, start)
		return nil, fmt.Errorf("backend: %s %s: %w: %w", in.method, in.path, httpx.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.observe(in.endpoint, resp.StatusCode, start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("backend: read %s: %w", in.path, err)
	}

	var env envelope
	enveloped := json.Unmarshal(raw, &env) == nil && (env.Success != nil || env.Data != nil)

	if resp.StatusCode >= http.StatusBadRequest || (enveloped && env.Success != nil && !*env.Success) {
		apiErr := &Error{Status: resp.StatusCode, Message: strings.TrimSpace(env.Message), Fields: fieldErrors(env.Errors)}
		if apiErr.Status < http.StatusBadRequest {
			apiErr.Status = http.StatusUnprocessableEntity
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(apiErr.Status)
		}
		level := slog.LevelWarn
		if apiErr.Status == http.StatusUnauthorized {
			level = slog.LevelInfo
		}
		c.logger.Log(ctx, level, "backend call failed",
			slog.String("method", in.method),
			slog.String("path", in.path),
			slog.Int("status", apiErr.Status),
			slog.String("message", apiErr.Message))
		return nil, apiErr
	}

	res := &response{status: resp.StatusCode, cookies: resp.Cookies()}
	if enveloped {
		res.data = env.Data
	} else {
		res.data = raw
	}
	return res, nil
}

func (c *Client) newRequest(ctx context.Context, in call) (*http.Request, error) {
	method := in.method
	body := in.body
	if c.methodOverride && overridable(method) {
		body = withMethodField(body, method)
		method = http.MethodPost
	}

	target := c.baseURL.JoinPath(in.path)
	if len(in.query) > 0 {
		target.RawQuery = in.query.Encode()
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case *multipartBody:
		buf, ct, err := encodeMultipart(b)
		if err != nil {
			return nil, err
		}
		reader, contentType = buf, ct
	case overrideJSON:
		raw, err := b.encode()
		if err != nil {
			return nil, err
		}
		reader, contentType = bytes.NewReader(raw), "application/json"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("backend: encode body: %w", err)
		}
		reader, contentType = bytes.NewReader(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	creds := CredentialsFromContext(ctx)
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	for _, ck := range creds.Cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return req, nil
}

func (c *Client) observe(endpoint string, status int, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveBackend(endpoint, status, time.Since(start))
}

func overridable(method string) bool {
	switch method {
	case http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// overrideJSON is a JSON body that gains a _method member when encoded.
type overrideJSON struct {
	body   any
	method string
}

func (o overrideJSON) encode() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if o.body != nil {
		raw, err := json.Marshal(o.body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode body: %w", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("backend: method override needs an object body: %w", err)
		}
	}
	verb, _ := json.Marshal(o.method)
	fields[methodOverrideField] = verb
	return json.Marshal(fields)
}

func withMethodField(body any, method string) any {
	if mp, ok := body.(*multipartBody); ok {
		fields := make(map[string]string, len(mp.fields)+1)
		for k, v := range mp.fields {
			fields[k] = v
		}
		fields[methodOverrideField] = method
		return &multipartBody{fields: fields, files: mp.files}
	}
	return overrideJSON{body: body, method: method}
}

func encodeMultipart(b *multipartBody) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range b.fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("backend: multipart field %s: %w", k, err)
		}
	}
	for _, f := range b.files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("backend: multipart file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("backend: multipart file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: multipart close: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// fieldErrors flattens {"field": ["msg", ...]} or {"field": "msg"}.
func fieldErrors(raw json.RawMessage) map[string]string {
	if isNull(bytes.TrimSpace(raw)) {
		return nil
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	out := make(map[string]string, len(generic))
	for field, value := range generic {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil && len(list) > 0 {
			out[field] = list[0]
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			out[field] = single
		}
	}
	return out
}

// decodeList accepts {items, pagination:{total}}, {items, total} or a bare
// array. Without pagination metadata the total is the number of items.
func decodeList[T any](raw json.RawMessage) (Page[T], error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return Page[T]{}, nil
	}
	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return Page[T]{}, fmt.Errorf("backend: decode list: %w", err)
		}
		return Page[T]{Items: items, Total: len(items)}, nil
	}
	var data listData[T]
	if err := json.Unmarshal(raw, &data); err != nil {
		return Page[T]{}, fmt.Errorf("backend: decode list: %w", err)
	}
	total := int(data.Pagination.Total)
	if data.Total != nil && total == 0 {
		total = int(*data.Total)
	}
	if total < len(data.Items) {
		total = len(data.Items)
	}
	return Page[T]{Items: data.Items, Total: total}, nil
}

func listOf[T any](ctx context.Context, c *Client, endpoint, path string, query url.Values) (Page[T], error) {
	res, err := c.do(ctx, call{method: http.MethodGet, path: path, query: query, endpoint: endpoint})
	if err != nil {
		return Page[T]{}, err
	}
	return decodeList[T](res.data)
}

// IsUnauthorized reports whether err means the backend session is gone.
func IsUnauthorized(err error) bool {
	return errors.Is(err, httpx.ErrUnauthorized)
}
