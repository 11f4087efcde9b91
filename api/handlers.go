package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tasklist/domain"
	"tasklist/view"
)

const attrTaskID = "tasklist.task.id"

// Register wires up all API routes on the provided Echo instance. The
// returned func detaches the stream broker from the store and ends open
// streams.
func Register(e *echo.Echo, store TaskStore, logger *log.Logger, reg prometheus.Registerer) func() {
	ops := newOperationMetrics(reg)
	broker := newUpdateBroker()
	detach := store.Subscribe(func(domain.Change) { broker.notify() })

	e.GET("/api/tasks", getTasks(store, ops, logger))
	e.POST("/api/tasks", createTask(store, ops, logger))
	e.PATCH("/api/tasks/:id", updateTask(store, ops, logger))
	e.POST("/api/tasks/:id/toggle", toggleTask(store, ops, logger))
	e.DELETE("/api/tasks/:id", deleteTask(store, ops, logger))
	e.DELETE("/api/tasks", clearTasks(store, ops, logger))
	e.GET("/api/stream", streamSummary(store, broker, logger))
	e.GET("/healthz", healthz(store))

	return func() {
		detach()
		broker.close()
	}
}

func healthz(store TaskStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "tasks": len(store.All())})
	}
}

func getTasks(store TaskStore, ops *operationMetrics, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newTaskRequestMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		filter, parseErr := view.ParseFilter(c.QueryParam("filter"))
		if parseErr != nil {
			metrics.SetErrorStage("invalid_filter")
			ops.observe(opList, outcomeBad)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: parseErr.Error()})
		}
		search := c.QueryParam("q")
		metrics.SetFilter(string(filter))
		metrics.SetSearchProvided(strings.TrimSpace(search) != "")

		fetchStart := time.Now()
		projection := view.Project(store.All(), filter, search)
		metrics.ObserveFetch(time.Since(fetchStart))
		metrics.SetTasks(len(projection.Visible), projection.Summary.Total)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{
			Tasks:   snapshots(projection.Visible),
			Summary: projection.Summary,
		})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
			ops.observe(opList, outcomeFailed)
			return err
		}
		ops.observe(opList, outcomeOK)
		return nil
	}
}

func createTask(store TaskStore, ops *operationMetrics, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx, span := startSpan(c, "tasklist.api.create")
		defer func() { endSpan(span, c.Response().Status, err) }()

		var req createTaskRequest
		if err := c.Echo().JSONSerializer.Deserialize(c, &req); err != nil {
			ops.observe(opCreate, outcomeBad)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		priority, perr := domain.ParsePriority(req.Priority)
		if perr != nil {
			return failure(c, ops, logger, opCreate, perr)
		}

		task, addErr := store.Add(ctx, req.Name, priority)
		warning, addErr := splitStorageError(addErr)
		if addErr != nil {
			return failure(c, ops, logger, opCreate, addErr)
		}
		span.SetAttributes(attribute.String(attrTaskID, task.ID))
		ops.observe(opCreate, outcomeFor(warning))
		return c.JSON(http.StatusCreated, taskResponse{Task: task.Snapshot(), Warning: warning})
	}
}

func updateTask(store TaskStore, ops *operationMetrics, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		id := c.Param("id")
		ctx, span := startSpan(c, "tasklist.api.update", attribute.String(attrTaskID, id))
		defer func() { endSpan(span, c.Response().Status, err) }()

		var req updateTaskRequest
		if err := c.Echo().JSONSerializer.Deserialize(c, &req); err != nil {
			ops.observe(opUpdate, outcomeBad)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Name == nil && req.Priority == nil {
			ops.observe(opUpdate, outcomeBad)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "nothing to update"})
		}

		// Both fields are validated before either is applied.
		var priority domain.Priority
		if req.Priority != nil {
			p, perr := domain.ParsePriority(*req.Priority)
			if perr != nil {
				return failure(c, ops, logger, opUpdate, perr)
			}
			priority = p
		}
		if req.Name != nil {
			if _, nerr := domain.NormalizeName(*req.Name); nerr != nil {
				return failure(c, ops, logger, opUpdate, nerr)
			}
		}

		var warning string
		found := true
		if req.Name != nil {
			var editErr error
			found, editErr = store.Edit(ctx, id, *req.Name)
			if w, rest := splitStorageError(editErr); rest != nil {
				return failure(c, ops, logger, opUpdate, rest)
			} else if w != "" {
				warning = w
			}
		}
		if found && req.Priority != nil {
			var prioErr error
			found, prioErr = store.SetPriority(ctx, id, priority)
			if w, rest := splitStorageError(prioErr); rest != nil {
				return failure(c, ops, logger, opUpdate, rest)
			} else if w != "" {
				warning = w
			}
		}
		return respondTask(c, store, ops, opUpdate, id, found, warning)
	}
}

func toggleTask(store TaskStore, ops *operationMetrics, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		id := c.Param("id")
		ctx, span := startSpan(c, "tasklist.api.toggle", attribute.String(attrTaskID, id))
		defer func() { endSpan(span, c.Response().Status, err) }()

		found, toggleErr := store.Toggle(ctx, id)
		warning, toggleErr := splitStorageError(toggleErr)
		if toggleErr != nil {
			return failure(c, ops, logger, opToggle, toggleErr)
		}
		return respondTask(c, store, ops, opToggle, id, found, warning)
	}
}

func deleteTask(store TaskStore, ops *operationMetrics, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		id := c.Param("id")
		ctx, span := startSpan(c, "tasklist.api.delete", attribute.String(attrTaskID, id))
		defer func() { endSpan(span, c.Response().Status, err) }()

		found, removeErr := store.Remove(ctx, id)
		span.SetAttributes(attribute.Bool("tasklist.task.found", found))
		warning, removeErr := splitStorageError(removeErr)
		if removeErr != nil {
			return failure(c, ops, logger, opDelete, removeErr)
		}
		ops.observe(opDelete, outcomeFor(warning))
		if warning != "" {
			return c.JSON(http.StatusOK, warningResponse{Warning: warning})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func clearTasks(store TaskStore, ops *operationMetrics, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx, span := startSpan(c, "tasklist.api.clear")
		defer func() { endSpan(span, c.Response().Status, err) }()

		if confirmed, _ := strconv.ParseBool(c.QueryParam("confirm")); !confirmed {
			ops.observe(opClear, outcomeRejected)
			return c.JSON(http.StatusConflict, errorResponse{Error: "clearing all tasks requires confirm=true"})
		}

		warning, clearErr := splitStorageError(store.Clear(ctx))
		if clearErr != nil {
			return failure(c, ops, logger, opClear, clearErr)
		}
		ops.observe(opClear, outcomeFor(warning))
		if warning != "" {
			return c.JSON(http.StatusOK, warningResponse{Warning: warning})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func respondTask(c echo.Context, store TaskStore, ops *operationMetrics, op, id string, found bool, warning string) error {
	task, ok := store.Get(id)
	if !found || !ok {
		ops.observe(op, outcomeNotFound)
		return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
	}
	ops.observe(op, outcomeFor(warning))
	return c.JSON(http.StatusOK, taskResponse{Task: task.Snapshot(), Warning: warning})
}

// splitStorageError separates a save failure, which leaves the in-memory
// change applied, from errors that rejected the operation.
func splitStorageError(err error) (string, error) {
	var serr *domain.StorageError
	if errors.As(err, &serr) {
		return serr.Error(), nil
	}
	return "", err
}

func failure(c echo.Context, ops *operationMetrics, logger *log.Logger, op string, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		ops.observe(op, outcomeBad)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
	}
	ops.observe(op, outcomeFailed)
	logger.WithError(err).WithField("op", op).Error("task operation failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func outcomeFor(warning string) string {
	if warning != "" {
		return outcomeDegraded
	}
	return outcomeOK
}

func startSpan(c echo.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request().Context(), name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	c.SetRequest(c.Request().WithContext(ctx))
	return ctx, span
}

func endSpan(span trace.Span, status int, err error) {
	span.SetAttributes(attribute.Int(attrHTTPStatusCode, status))
	switch {
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(status))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
