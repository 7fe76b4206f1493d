// Package api is the client of the fragments conversion service. The
// service turns uploaded IFC files into fragments payloads and serves
// previously converted models by id.
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/bimview/internal/log"
	"github.com/zjrosen/bimview/internal/tracing"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout covers large IFC uploads.
	DefaultTimeout = 5 * time.Minute
	// EnvBaseURL overrides the configured base URL.
	EnvBaseURL = "BIMVIEW_API_BASE_URL"

	defaultMaxTries = 3
	defaultInterval = 500 * time.Millisecond
)

// ErrNoPayload is returned when a response carries no fragments data.
var ErrNoPayload = errors.New("api: response has no fragments payload")

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("api: %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Fragments is a converted model.
type Fragments struct {
	ID    string
	Count int
	Data  []byte
}

type fragmentsResponse struct {
	ID        string `json:"id"`
	Fragments string `json:"fragments"`
	Count     int    `json:"fragmentsCount"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, which has DefaultTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTracer records requests as spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithRetry sets how often downloads are attempted and the first wait
// between attempts. Uploads are never retried.
func WithRetry(maxTries uint, interval time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.interval = interval
	}
}

// Client talks to the fragments service.
type Client struct {
	baseURL  string
	http     *http.Client
	tracer   trace.Tracer
	maxTries uint
	interval time.Duration
}

// New returns a client for baseURL, or DefaultBaseURL when empty.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: DefaultTimeout},
		maxTries: defaultMaxTries,
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURLFromEnv returns the EnvBaseURL value, or fallback when unset.
func BaseURLFromEnv(fallback string) string {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		return v
	}
	return fallback
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// UploadFile uploads the IFC file at path.
func (c *Client) UploadFile(ctx context.Context, path string) (*Fragments, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is the IFC file named by the user
	if err != nil {
		return nil, fmt.Errorf("open ifc: %w", err)
	}
	defer func() { _ = f.Close() }()
	return c.Upload(ctx, filepath.Base(path), f)
}

// Upload posts an IFC file as the multipart field "file" and returns the
// converted fragments.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*Fragments, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read ifc: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	ctx, span := tracing.Start(ctx, c.tracer, tracing.SpanUpload, attribute.Int(tracing.AttrBytes, body.Len()))
	log.Info(log.CatAPI, "Uploading IFC file", "name", name, "bytes", body.Len())
	frags, err := c.do(ctx, http.MethodPost, "/fragments", &body, mw.FormDataContentType())
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}
	log.Info(log.CatAPI, "IFC converted", "id", frags.ID, "fragments", frags.Count)
	return frags, nil
}

// Download fetches the fragments of a converted model, retrying transport
// failures and 5xx responses.
func (c *Client) Download(ctx context.Context, id string) (*Fragments, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("api: empty model id")
	}
	path := "/fragments/" + url.PathEscape(id)
	ctx, span := tracing.Start(ctx, c.tracer, tracing.SpanDownload, attribute.String(tracing.AttrModelID, id))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.interval
	frags, err := backoff.Retry(ctx, func() (*Fragments, error) {
		frags, err := c.do(ctx, http.MethodGet, path, nil, "")
		if err == nil {
			return frags, nil
		}
		if retryable(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn(log.CatAPI, "Download failed, retrying", "id", id, "wait", wait, "error", err)
		}),
	)
	if err == nil {
		span.SetAttributes(attribute.Int(tracing.AttrBytes, len(frags.Data)))
	}
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}
	if frags.ID == "" {
		frags.ID = id
	}
	return frags, nil
}

// retryable reports transport failures and 5xx responses.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*Fragments, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	var fr fragmentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("api: decode %s response: %w", path, err)
	}
	if fr.Fragments == "" {
		return nil, ErrNoPayload
	}
	data, err := base64.StdEncoding.DecodeString(fr.Fragments)
	if err != nil {
		return nil, fmt.Errorf("api: decode fragments payload: %w", err)
	}
	return &Fragments{ID: fr.ID, Count: fr.Count, Data: data}, nil
}
