package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "tasklist/api"

	tasksSpanName      = "tasklist.api.tasks"
	tasksEventName     = "tasklist.api.tasks.request"
	tasksEventDomain   = "app"
	observabilityEvent = "observability.event"

	attrRoute          = "http.route"
	attrHTTPStatusCode = "http.status_code"
	attrTotalMillis    = "tasklist.tasks.total_ms"
	attrFetchMillis    = "tasklist.tasks.fetch_ms"
	attrEncodeMillis   = "tasklist.tasks.encode_ms"
	attrFilter         = "tasklist.tasks.filter"
	attrSearchProvided = "tasklist.tasks.search_provided"
	attrTasksReturned  = "tasklist.tasks.tasks_returned"
	attrTasksTotal     = "tasklist.tasks.tasks_total"
	attrErrorStage     = "tasklist.tasks.error_stage"
	attrErrorMessage   = "error.message"
)

// taskRequestMetrics records one GET /api/tasks call as a span plus a
// structured observability event.
type taskRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	fetchDuration  time.Duration
	encodeDuration time.Duration
	filter         string
	searchProvided bool
	tasksReturned  int
	tasksTotal     int
	errorStage     string
}

func newTaskRequestMetrics(ctx context.Context, logger *log.Logger) (*taskRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, tasksSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(attrRoute, "/api/tasks")),
	)
	return &taskRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *taskRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *taskRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *taskRequestMetrics) SetFilter(filter string) {
	m.filter = filter
}

func (m *taskRequestMetrics) SetSearchProvided(provided bool) {
	m.searchProvided = provided
}

func (m *taskRequestMetrics) SetTasks(returned, total int) {
	m.tasksReturned = max(returned, 0)
	m.tasksTotal = max(total, 0)
}

func (m *taskRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and emits the observability event on both the span and
// the logger.
func (m *taskRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrRoute, "/api/tasks"),
		attribute.Int(attrHTTPStatusCode, status),
		attribute.Float64(attrTotalMillis, durationToMillis(time.Since(m.start))),
		attribute.String(attrFilter, m.filter),
		attribute.Bool(attrSearchProvided, m.searchProvided),
		attribute.Int(attrTasksReturned, m.tasksReturned),
		attribute.Int(attrTasksTotal, m.tasksTotal),
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrFetchMillis, durationToMillis(m.fetchDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrEncodeMillis, durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrErrorStage, m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorMessage, err.Error()))
	}

	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", tasksEventName),
			attribute.String("event.domain", tasksEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		switch {
		case err != nil:
			m.span.SetStatus(codes.Error, err.Error())
		case status >= http.StatusInternalServerError:
			m.span.SetStatus(codes.Error, http.StatusText(status))
		default:
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      tasksEventName,
		"event.domain":    tasksEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToFields(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

const (
	opList     = "list"
	opCreate   = "create"
	opUpdate   = "update"
	opToggle   = "toggle"
	opDelete   = "delete"
	opClear    = "clear"
	outcomeOK  = "ok"
	outcomeBad = "invalid"

	outcomeNotFound = "not_found"
	outcomeRejected = "rejected"
	outcomeDegraded = "storage_error"
	outcomeFailed   = "error"
)

// operationMetrics counts task operations served over HTTP.
type operationMetrics struct {
	ops *prometheus.CounterVec
}

func newOperationMetrics(reg prometheus.Registerer) *operationMetrics {
	return &operationMetrics{
		ops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasklist",
			Name:      "task_operations_total",
			Help:      "Task operations handled by the HTTP API, by operation and outcome.",
		}, []string{"op", "outcome"}),
	}
}

func (m *operationMetrics) observe(op, outcome string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, outcome).Inc()
}
