package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "kanban-api/api"
	requestSpanName     = "kanban.api.request"
	requestEventName    = "kanban.api.request"
	requestEventDomain  = "kanban.api"
	observabilityEvent  = "observability.event"
	metricsContextKey   = "requestMetrics"
	attrTotalMillis     = "kanban.request.total_ms"
	attrErrorStage      = "kanban.request.error_stage"
	attrErrorMessage    = "error.message"
	severityNumberInfo  = 9
	severityNumberWarn  = 13
	severityNumberError = 17
)

type requestMetrics struct {
	logger     *log.Logger
	start      time.Time
	method     string
	route      string
	userID     string
	errorStage string
	errMessage string
	span       trace.Span
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		start:  time.Now(),
		method: method,
		route:  route,
		span:   span,
	}, ctx
}

func (m *requestMetrics) SetUser(userID string) {
	m.userID = userID
}

// SetError records where a request failed without marking the request as a
// server error.
func (m *requestMetrics) SetError(stage string, err error) {
	if stage != "" {
		m.errorStage = stage
	}
	if err != nil {
		m.errMessage = err.Error()
	}
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)
	errMessage := m.errMessage
	if err != nil {
		errMessage = err.Error()
	}

	attrs := map[string]any{
		"http.route":       m.route,
		"http.method":      m.method,
		"http.status_code": status,
		attrTotalMillis:    totalMs,
	}
	spanAttrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrTotalMillis, totalMs),
	}
	if m.userID != "" {
		attrs["enduser.id"] = m.userID
		spanAttrs = append(spanAttrs, attribute.String("enduser.id", m.userID))
	}
	if m.errorStage != "" {
		attrs[attrErrorStage] = m.errorStage
		spanAttrs = append(spanAttrs, attribute.String(attrErrorStage, m.errorStage))
	}
	if errMessage != "" {
		attrs[attrErrorMessage] = errMessage
		spanAttrs = append(spanAttrs, attribute.String(attrErrorMessage, errMessage))
	}

	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}

	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
		m.span.SetAttributes(spanAttrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, spanAttrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if severityNumber == severityNumberError {
			desc := errMessage
			if desc == "" {
				desc = http.StatusText(status)
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(fields)
	switch severityNumber {
	case severityNumberError:
		entry.Error(observabilityEvent)
	case severityNumberWarn:
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", severityNumberError
	case status >= http.StatusBadRequest:
		return "WARN", severityNumberWarn
	default:
		return "INFO", severityNumberInfo
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// observe wraps every request in a span and emits one observability event
// when the handler returns.
func observe(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)
			status := c.Response().Status
			logErr := err
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
					if he.Code < http.StatusInternalServerError {
						m.SetError("request", err)
						logErr = nil
					}
				} else {
					status = http.StatusInternalServerError
				}
			}
			m.Log(status, logErr)
			return err
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}
