// Package fetch downloads remote dataset files through per-host rate
// limiting, retries and circuit breaking.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/dataset"
	"github.com/snow-ghost/featsel/pkg/limiter"
	"github.com/snow-ghost/featsel/pkg/logging"
	"github.com/snow-ghost/featsel/pkg/metrics"
	"github.com/snow-ghost/featsel/pkg/tracing"
)

const DefaultTimeout = 30 * time.Second

// Config tunes the downloader.
type Config struct {
	Timeout time.Duration
	MaxSize int64
	RPS     float64
	Burst   int
	Retry   *limiter.RetryConfig
	Breaker *limiter.CircuitBreakerConfig
}

func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		MaxSize: dataset.MaxFileSize,
		RPS:     2,
		Burst:   4,
	}
}

// File is a downloaded dataset.
type File struct {
	Name string
	Data []byte
}

// Client performs guarded GET requests.
type Client struct {
	http    *http.Client
	policy  core.HostPolicy
	protect *limiter.ProtectionManager
	maxSize int64
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
}

// NewClient builds a client. policy, logger, m and tracer may be nil.
func NewClient(cfg Config, policy core.HostPolicy, logger *logging.Logger, m *metrics.PrometheusMetrics, tracer *tracing.Tracer) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = dataset.MaxFileSize
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if tracer == nil {
		tracer = tracing.Noop()
	}
	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		policy:  policy,
		maxSize: cfg.MaxSize,
		logger:  logger,
		metrics: m,
		tracer:  tracer,
	}
	breakers := limiter.NewCircuitBreakerManager(cfg.Breaker, func(host string, from, to gobreaker.State) {
		c.logger.LogCircuitBreaker(context.Background(), host, from.String(), to.String())
		if c.metrics != nil {
			c.metrics.RecordCircuitState(host, to.String())
		}
	})
	c.protect = limiter.NewProtectionManager(
		limiter.NewRateLimiter(cfg.RPS, cfg.Burst),
		limiter.NewRetryManager(cfg.Retry, nil),
		breakers,
	)
	return c
}

// Get downloads rawURL. The file name is taken from the last path segment
// and must carry a supported extension.
func (c *Client) Get(ctx context.Context, rawURL string) (*File, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &core.ContractError{Field: "url", Reason: "must be an absolute http(s) URL"}
	}
	if c.policy != nil && !c.policy.AllowHost(u.Host) {
		return nil, &core.ContractError{Field: "url", Reason: fmt.Sprintf("host %s is not allowed", u.Hostname())}
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = ""
	}
	if err := dataset.CheckExtension(name); err != nil {
		return nil, err
	}

	host := u.Hostname()
	ctx, span := c.tracer.StartFetchSpan(ctx, host)
	defer span.End()
	start := time.Now()

	attempt := 0
	out, err := c.protect.ExecuteWithProtection(ctx, host, func(ctx context.Context) (interface{}, error) {
		attempt++
		if attempt > 1 {
			c.logger.LogRetry(ctx, host, "retry", attempt)
			if c.metrics != nil {
				c.metrics.RecordRetry(host, "retry")
			}
		}
		return c.do(ctx, u.String())
	})
	tracing.RecordSpanDuration(span, time.Since(start))
	if err != nil {
		tracing.RecordSpanError(span, err)
		var ce *core.ContractError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	tracing.RecordSpanSuccess(span)
	data := out.([]byte)
	c.logger.Info("dataset downloaded", "host", host, "file", name, "bytes", len(data), "attempts", attempt)
	return &File{Name: name, Data: data}, nil
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && ctx.Err() == nil {
			return nil, &limiter.NetworkError{Err: err}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, limiter.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), string(body))
	}
	if resp.ContentLength > c.maxSize {
		return nil, tooLarge(c.maxSize)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, &limiter.NetworkError{Err: err}
	}
	if int64(len(data)) > c.maxSize {
		return nil, tooLarge(c.maxSize)
	}
	return data, nil
}

func tooLarge(limit int64) error {
	return &core.ContractError{Field: "url", Reason: fmt.Sprintf("file too large, maximum size is %dMB", limit>>20)}
}

// Protection reports limiter and breaker state for host, or for every host
// contacted so far when host is empty.
func (c *Client) Protection(host string) map[string]interface{} {
	if host == "" {
		return c.protect.GetAllStats()
	}
	return c.protect.GetStats(host)
}

// ResetProtection forgets the limiter and breaker of host, or of every host
// when host is empty.
func (c *Client) ResetProtection(host string) {
	if host == "" {
		c.protect.ResetAll()
		c.logger.Info("download protection reset")
		return
	}
	c.protect.ResetHost(host)
	c.logger.Info("download protection reset", "host", host)
}
