package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fleet_gateway/internal/config"
	"fleet_gateway/internal/metrics"
	"fleet_gateway/types"
)

const (
	// PreviewLimit bounds the diagnostic text kept from non-JSON bodies.
	PreviewLimit = 500
	maxBodyBytes = 2 << 20
)

var (
	ErrNotConfigured   = errors.New("upstream not configured")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrUpstreamNetwork = errors.New("upstream unavailable")
)

// HTTPError is a non-2xx answer or a 2xx answer whose body reports a failure.
type HTTPError struct {
	StatusCode int
	Message    string
	Preview    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Result of one aggregator call. JSON is nil when no JSON could be recovered;
// TextPreview is then the only trace of the body.
type Result struct {
	OK          bool
	HTTPStatus  int
	JSON        any
	TextPreview string
	Message     string
}

// Err returns nil for a successful result and *HTTPError otherwise.
func (r *Result) Err() error {
	if r.OK {
		return nil
	}
	preview := r.TextPreview
	if preview == "" && r.JSON != nil {
		if raw, err := json.Marshal(r.JSON); err == nil {
			preview = Truncate(string(raw), PreviewLimit)
		}
	}
	message := r.Message
	if message == "" && r.JSON == nil {
		message = "response body is not JSON"
		if r.HTTPStatus < 200 || r.HTTPStatus >= 300 {
			message = http.StatusText(r.HTTPStatus)
		}
	}
	return &HTTPError{StatusCode: r.HTTPStatus, Message: message, Preview: preview}
}

type Client interface {
	// Configured returns ErrNotConfigured (wrapped) when no call could succeed.
	Configured() error
	Call(ctx context.Context, service types.Service, payload map[string]any) (*Result, error)
}

type client struct {
	cfg    config.UpstreamConfig
	http   *http.Client
	logger *zap.Logger
}

// Общий транспорт: переиспользование соединений к агрегатору
var defaultTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   20,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   5 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// NewClient builds the aggregator client. A nil httpClient uses the shared transport;
// per-call deadlines come from the context, not from http.Client.Timeout.
func NewClient(cfg config.UpstreamConfig, httpClient *http.Client, logger *zap.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: defaultTransport}
	}
	return &client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
	}
}

func (c *client) path(service types.Service) string {
	switch service {
	case types.ServiceFastag:
		return c.cfg.FastagPath
	case types.ServiceChallans:
		return c.cfg.ChallanPath
	default:
		return c.cfg.RCPath
	}
}

func (c *client) timeout(service types.Service) time.Duration {
	if service == types.ServiceChallans {
		return c.cfg.ChallanTimeout()
	}
	return c.cfg.Timeout()
}

func (c *client) Configured() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return fmt.Errorf("%w: api key is empty", ErrNotConfigured)
	}
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base url is empty", ErrNotConfigured)
	}
	return nil
}

// Call issues exactly one POST to the aggregator.
func (c *client) Call(ctx context.Context, service types.Service, payload map[string]any) (*Result, error) {
	if err := c.Configured(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream payload: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout(service))
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + c.path(service)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}

	start := time.Now()
	result, err := c.do(callCtx, req)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrUpstreamTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "network_error"
	case !result.OK:
		outcome = "upstream_error"
	}
	metrics.UpstreamRequestDuration.WithLabelValues(string(service), outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("upstream call failed",
			zap.String("service", string(service)),
			zap.String("url", url),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("upstream call completed",
		zap.String("service", string(service)),
		zap.Int("status", result.HTTPStatus),
		zap.Bool("ok", result.OK),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (c *client) do(ctx context.Context, req *http.Request) (*Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(ctx, err)
	}

	return parseResponse(resp.StatusCode, resp.Header.Get("Content-Type"), raw), nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("upstream call canceled: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamNetwork, err)
}

// parseResponse sniffs the body: JSON content types are decoded directly, anything else
// (or JSON that fails to decode) is scanned for an embedded object.
func parseResponse(status int, contentType string, raw []byte) *Result {
	result := &Result{HTTPStatus: status}

	var parsed any
	decoded := false
	if isJSONContentType(contentType) {
		if err := json.Unmarshal(raw, &parsed); err == nil && parsed != nil {
			decoded = true
		}
	}
	if !decoded {
		if obj, ok := ExtractJSONObject(string(raw)); ok {
			parsed, decoded = obj, true
		}
	}

	if !decoded {
		result.TextPreview = Truncate(strings.TrimSpace(string(raw)), PreviewLimit)
		return result
	}

	result.JSON = parsed
	obj, _ := parsed.(map[string]any)
	result.Message = embeddedMessage(obj)
	result.OK = status >= 200 && status < 300 && !embeddedFailure(obj)
	if !result.OK && result.Message == "" {
		result.Message = http.StatusText(status)
	}
	return result
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
