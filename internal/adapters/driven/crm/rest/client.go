package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/fieldsync/internal/codecs"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
	"github.com/custodia-labs/fieldsync/internal/logger"
	"github.com/custodia-labs/fieldsync/internal/metrics"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultRate is the default request rate (requests per second).
	DefaultRate = 5.0

	// DefaultBurst is the default token bucket size.
	DefaultBurst = 5

	// DefaultBreakerFailures is how many consecutive failures open the breaker.
	DefaultBreakerFailures = 5

	// DefaultBreakerCooldown is how long the breaker stays open.
	DefaultBreakerCooldown = 30 * time.Second

	// breakerName labels breaker metrics.
	breakerName = "crm-api"

	// maxErrorBody caps how much of an error response is quoted.
	maxErrorBody = 512
)

// Config configures the client.
type Config struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Option customises a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	codecs     *codecs.Registry
}

// WithHTTPClient sets the base HTTP client. The bearer token is layered on top.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithCodecs sets the registry used to read parent IDs from records.
func WithCodecs(reg *codecs.Registry) Option {
	return func(o *options) { o.codecs = reg }
}

// Client is a driven.CRMClient backed by a JSON/REST API.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	codecs  *codecs.Registry
}

var _ driven.CRMClient = (*Client)(nil)

// envelope is the body of every JSON response.
type envelope struct {
	Values       []map[string]any `json:"values"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// NewClient creates a client for the API rooted at cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: crm base url %q", domain.ErrInvalidInput, cfg.BaseURL)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.codecs == nil {
		o.codecs = codecs.NewRegistry()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}

	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond < 0 {
		limit = rate.Inf
	}

	return &Client{
		base:    base,
		http:    newHTTPClient(cfg, o.httpClient),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		breaker: newBreaker(cfg.BreakerFailures, cfg.BreakerCooldown),
		codecs:  o.codecs,
	}, nil
}

func newHTTPClient(cfg Config, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if cfg.Token == "" {
		hc := *base
		hc.Timeout = cfg.Timeout
		return &hc
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	hc.Timeout = cfg.Timeout
	return hc
}

// BreakerState returns the circuit breaker state as a string.
func (c *Client) BreakerState() string {
	return stateToString(c.breaker.State())
}

// Get returns the records of kind matching filter.
func (c *Client) Get(ctx context.Context, kind domain.EntityKind, filter domain.Filter) ([]domain.RemoteRecord, error) {
	codec, err := c.codecs.Get(kind)
	if err != nil {
		return nil, err
	}

	u := c.base.JoinPath(kind.Object())
	q := url.Values{}
	for k, v := range filter {
		q.Set(k, domain.ToString(v))
	}
	u.RawQuery = q.Encode()

	body, err := c.send(ctx, "get", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	})
	if err != nil {
		return nil, err
	}

	env, err := decode(body)
	if err != nil {
		return nil, err
	}
	records := make([]domain.RemoteRecord, 0, len(env.Values))
	for _, v := range env.Values {
		records = append(records, codecs.RecordFromPayload(codec, v))
	}
	return records, nil
}

// Create creates a record. Attachment payloads naming a local file are uploaded.
func (c *Client) Create(ctx context.Context, kind domain.EntityKind, payload domain.Payload) (*domain.RemoteRecord, error) {
	codec, err := c.codecs.Get(kind)
	if err != nil {
		return nil, err
	}
	if _, ok := payload["id"]; ok {
		return nil, fmt.Errorf("%w: create payload carries an id", domain.ErrInvalidInput)
	}

	u := c.base.JoinPath(kind.Object()).String()
	body, err := c.send(ctx, "create", func(ctx context.Context) (*http.Request, error) {
		if upload := domain.ToString(payload[codecs.AttachmentUpload]); upload != "" {
			return newUploadRequest(ctx, u, upload, payload)
		}
		return newJSONRequest(ctx, http.MethodPost, u, payload)
	})
	if err != nil {
		return nil, err
	}
	return firstRecord(codec, body)
}

// Update updates the record identified by payload["id"].
func (c *Client) Update(ctx context.Context, kind domain.EntityKind, payload domain.Payload) (*domain.RemoteRecord, error) {
	codec, err := c.codecs.Get(kind)
	if err != nil {
		return nil, err
	}
	id := domain.ToInt(payload["id"])
	if id <= 0 {
		return nil, fmt.Errorf("%w: update payload has no id", domain.ErrInvalidInput)
	}

	fields := make(domain.Payload, len(payload))
	for k, v := range payload {
		if k != "id" {
			fields[k] = v
		}
	}

	u := c.base.JoinPath(kind.Object(), strconv.FormatInt(id, 10)).String()
	body, err := c.send(ctx, "update", func(ctx context.Context) (*http.Request, error) {
		return newJSONRequest(ctx, http.MethodPatch, u, fields)
	})
	if err != nil {
		return nil, err
	}
	return firstRecord(codec, body)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, kind domain.EntityKind, id int64) error {
	u := c.base.JoinPath(kind.Object(), strconv.FormatInt(id, 10)).String()
	_, err := c.send(ctx, "delete", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	})
	return err
}

// Download opens the CRM's copy of an attachment binary.
func (c *Client) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	u := c.base.JoinPath("files", remotePath).String()
	body, err := c.send(ctx, "download", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// send runs one request through the rate limiter and the breaker.
func (c *Client) send(ctx context.Context, op string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classify(ctx, err)
		}
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		logger.Debug("CRM %s %s", req.Method, req.URL.Path)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, classify(ctx, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading response: %v", domain.ErrTransient, err)
		}
		if err := statusError(resp.StatusCode, data); err != nil {
			return nil, err
		}
		return data, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CRMRequests.WithLabelValues(op, "rejected").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrNotInitialized, err)
	case err != nil:
		metrics.CRMRequests.WithLabelValues(op, metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("crm %s: %w", op, err)
	}
	metrics.CRMRequests.WithLabelValues(op, metrics.OutcomeSuccess).Inc()
	return body, nil
}

// classify maps transport failures onto domain errors.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", domain.ErrNotInitialized, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrTransient, err)
}

// statusError maps an HTTP status onto a domain error.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.ErrorMessage != "" {
		msg = env.ErrorMessage
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: unauthorised: %s", domain.ErrNotInitialized, msg)
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrTransient, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrRejected, status, msg)
	}
}

func decode(body []byte) (*envelope, error) {
	var env envelope
	if len(bytes.TrimSpace(body)) == 0 {
		return &env, nil
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", domain.ErrTransient, err)
	}
	return &env, nil
}

func firstRecord(codec codecs.Codec, body []byte) (*domain.RemoteRecord, error) {
	env, err := decode(body)
	if err != nil {
		return nil, err
	}
	if len(env.Values) == 0 {
		return nil, fmt.Errorf("%w: response carries no record", domain.ErrRejected)
	}
	rec := codecs.RecordFromPayload(codec, env.Values[0])
	return &rec, nil
}

func newJSONRequest(ctx context.Context, method, u string, payload domain.Payload) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding payload: %v", domain.ErrInvalidInput, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// newUploadRequest sends the payload as form fields and the local file as "file".
func newUploadRequest(ctx context.Context, u, local string, payload domain.Payload) (*http.Request, error) {
	f, err := os.Open(local)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrInvalidInput, local, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k != codecs.AttachmentUpload {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, domain.ToString(payload[k])); err != nil {
			return nil, err
		}
	}

	part, err := w.CreateFormFile("file", filepath.Base(local))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading %s: %w", local, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}
