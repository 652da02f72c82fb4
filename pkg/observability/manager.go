package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/snow-ghost/featsel/pkg/logging"
	"github.com/snow-ghost/featsel/pkg/metrics"
	"github.com/snow-ghost/featsel/pkg/tracing"
	"github.com/snow-ghost/featsel/worker/telemetry"
)

// Manager manages all observability components
type Manager struct {
	metrics   *metrics.PrometheusMetrics
	tracer    *tracing.Tracer
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

// Config holds observability configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	JaegerEndpoint string
	Log            logging.Config
}

// NewManager creates a new observability manager
func NewManager(config Config) (*Manager, error) {
	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		JaegerEndpoint: config.JaegerEndpoint,
		Environment:    config.Environment,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(config.Log)
	if err != nil {
		return nil, err
	}
	return New(logger, metrics.NewPrometheusMetrics(), tracer), nil
}

// New assembles a manager from existing parts. Nil parts get no-op or
// fresh defaults.
func New(logger *logging.Logger, m *metrics.PrometheusMetrics, tracer *tracing.Tracer) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	if m == nil {
		m = metrics.NewPrometheusMetrics()
	}
	if tracer == nil {
		tracer = tracing.Noop()
	}
	return &Manager{
		metrics:   m,
		tracer:    tracer,
		logger:    logger,
		telemetry: telemetry.NewTelemetry(logger.GetSlog(), m),
	}
}

func (m *Manager) GetMetrics() *metrics.PrometheusMetrics { return m.metrics }

func (m *Manager) GetTracer() *tracing.Tracer { return m.tracer }

func (m *Manager) GetLogger() *logging.Logger { return m.logger }

// GetTelemetry returns the GA progress observer sharing this manager's sinks.
func (m *Manager) GetTelemetry() *telemetry.Telemetry { return m.telemetry }

// StartRunSpan opens the root span of a run and logs its start.
func (m *Manager) StartRunSpan(ctx context.Context, runID, dataset, problem, requestID string) (context.Context, trace.Span) {
	ctx, span := m.tracer.StartRunSpan(ctx, runID, dataset, problem)
	if requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	m.logger.WithRunID(runID).WithFields(map[string]interface{}{
		"dataset":      dataset,
		"problem_type": problem,
		"request_id":   requestID,
	}).Info("run started")
	return ctx, span
}

// RecordRun records the outcome of a run in metrics and logs.
func (m *Manager) RecordRun(ctx context.Context, runID, dataset, status string, duration time.Duration, selected int, score float64) {
	m.metrics.RecordRun(status, duration)
	logger := m.logger
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		logger = logger.With("trace_id", traceID)
	}
	logger.LogRun(ctx, runID, dataset, status, duration, selected, score)
}

// RecordCacheMetrics records a result-cache lookup.
func (m *Manager) RecordCacheMetrics(ctx context.Context, hit bool, key string) {
	if hit {
		m.metrics.RecordCacheHit()
	} else {
		m.metrics.RecordCacheMiss()
	}
	m.logger.LogCacheOperation(ctx, "run", hit, key)
}

// RecordHTTPRequest records a served request.
func (m *Manager) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, requestID string) {
	m.metrics.RecordHTTPRequest(route, statusClass(status))
	m.logger.LogRequest(ctx, method, route, status, duration, requestID)
}

// Shutdown shuts down all observability components
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.tracer.Shutdown(ctx); err != nil {
		return err
	}
	// Syncing stdout fails on some platforms; the error carries no signal.
	_ = m.logger.Sync()
	return nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
)

// GetRequestIDFromContext extracts request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
