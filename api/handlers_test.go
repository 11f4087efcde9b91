package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus/hooks/test"

	"tasklist/domain"
)

type failingPersister struct{}

func (failingPersister) Save(context.Context, []domain.Task) error {
	return &domain.StorageError{Op: "save", Err: errors.New("quota exceeded")}
}

func (failingPersister) Load(context.Context) []domain.Task { return nil }

func newTestServer(t *testing.T, p domain.Persister) (*Server, *domain.Store) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := domain.NewStore(p, logger)
	srv := NewServer(store, logger)
	t.Cleanup(srv.detach)
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return v
}

func createViaAPI(t *testing.T, srv *Server, name, priority string) domain.Snapshot {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", `{"name":"`+name+`","priority":"`+priority+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %q: expected 201 got %d (%s)", name, rec.Code, rec.Body.String())
	}
	return decode[taskResponse](t, rec).Task
}

func TestCreateAndListTasks(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	milk := createViaAPI(t, srv, "  buy milk ", "HIGH")
	if milk.Name != "buy milk" || milk.Priority != domain.PriorityHigh || milk.Done || milk.ID == "" {
		t.Fatalf("unexpected created task: %+v", milk)
	}
	bread := createViaAPI(t, srv, "buy bread", "")
	if bread.Priority != domain.PriorityMedium {
		t.Fatalf("expected default priority, got %q", bread.Priority)
	}
	createViaAPI(t, srv, "call mum", "low")

	if rec := doRequest(t, srv, http.MethodPost, "/api/tasks/"+bread.ID+"/toggle", ""); rec.Code != http.StatusOK {
		t.Fatalf("toggle: expected 200 got %d", rec.Code)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks?filter=pending&q=BUY", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200 got %d", rec.Code)
	}
	resp := decode[tasksResponse](t, rec)
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != milk.ID {
		t.Fatalf("unexpected visible tasks: %+v", resp.Tasks)
	}
	if resp.Summary.Total != 3 || resp.Summary.Completed != 1 || resp.Summary.Percent != 33 {
		t.Fatalf("summary must cover the full collection: %+v", resp.Summary)
	}

	all := decode[tasksResponse](t, doRequest(t, srv, http.MethodGet, "/api/tasks", ""))
	names := make([]string, len(all.Tasks))
	for i, task := range all.Tasks {
		names[i] = task.Name
	}
	if strings.Join(names, ",") != "buy milk,buy bread,call mum" {
		t.Fatalf("expected insertion order, got %v", names)
	}
}

func TestGetTasksInvalidFilter(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/tasks?filter=someday", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if resp := decode[errorResponse](t, rec); !strings.Contains(resp.Error, "filter") {
		t.Fatalf("unexpected error body: %+v", resp)
	}
}

func TestCreateTaskRejectsInvalidInput(t *testing.T) {
	tests := map[string]string{
		"empty name":     `{"name":"   "}`,
		"bad priority":   `{"name":"x","priority":"urgent"}`,
		"not json":       `{"name":`,
		"unknown fields": `{"name":"x","due":"tomorrow"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			srv, store := newTestServer(t, nil)
			rec := doRequest(t, srv, http.MethodPost, "/api/tasks", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d (%s)", rec.Code, rec.Body.String())
			}
			if decode[errorResponse](t, rec).Error == "" {
				t.Fatalf("expected error message")
			}
			if store.Len() != 0 {
				t.Fatalf("rejected create must not add a task")
			}
		})
	}
}

func TestUpdateTaskRenameScenario(t *testing.T) {
	srv, store := newTestServer(t, nil)
	task := createViaAPI(t, srv, "Write report", "")

	doRequest(t, srv, http.MethodPost, "/api/tasks/"+task.ID+"/toggle", "")
	rec := doRequest(t, srv, http.MethodPatch, "/api/tasks/"+task.ID, `{"name":"Write final report"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	got := decode[taskResponse](t, rec).Task
	if got.Name != "Write final report" || !got.Done || got.ID != task.ID || got.CreatedAt != task.CreatedAt {
		t.Fatalf("unexpected task after edit: %+v", got)
	}

	rec = doRequest(t, srv, http.MethodPatch, "/api/tasks/"+task.ID, `{"name":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty name, got %d", rec.Code)
	}
	if current, _ := store.Get(task.ID); current.Name != "Write final report" {
		t.Fatalf("rejected edit changed the name: %q", current.Name)
	}
}

func TestUpdateTaskPriority(t *testing.T) {
	srv, store := newTestServer(t, nil)
	task := createViaAPI(t, srv, "pay rent", "low")

	rec := doRequest(t, srv, http.MethodPatch, "/api/tasks/"+task.ID, `{"priority":"high"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := decode[taskResponse](t, rec).Task; got.Priority != domain.PriorityHigh || got.Name != "pay rent" {
		t.Fatalf("unexpected task: %+v", got)
	}

	rec = doRequest(t, srv, http.MethodPatch, "/api/tasks/"+task.ID, `{"name":"pay rent today","priority":"someday"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if current, _ := store.Get(task.ID); current.Name != "pay rent" || current.Priority != domain.PriorityHigh {
		t.Fatalf("rejected update must not be partially applied: %+v", current)
	}

	if rec := doRequest(t, srv, http.MethodPatch, "/api/tasks/"+task.ID, `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty patch, got %d", rec.Code)
	}
}

func TestUnknownTaskIDs(t *testing.T) {
	srv, store := newTestServer(t, nil)
	createViaAPI(t, srv, "keep me", "")

	if rec := doRequest(t, srv, http.MethodPost, "/api/tasks/missing/toggle", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("toggle: expected 404 got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodPatch, "/api/tasks/missing", `{"name":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("edit: expected 404 got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodDelete, "/api/tasks/missing", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204 got %d", rec.Code)
	}
	if store.Len() != 1 {
		t.Fatalf("unknown ids must not change the collection")
	}
}

func TestDeleteTaskIsIdempotent(t *testing.T) {
	srv, store := newTestServer(t, nil)
	task := createViaAPI(t, srv, "temporary", "")

	for i := 0; i < 2; i++ {
		if rec := doRequest(t, srv, http.MethodDelete, "/api/tasks/"+task.ID, ""); rec.Code != http.StatusNoContent {
			t.Fatalf("delete #%d: expected 204 got %d", i+1, rec.Code)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("expected task to be removed")
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	srv, store := newTestServer(t, nil)
	createViaAPI(t, srv, "one", "")
	createViaAPI(t, srv, "two", "")

	for _, target := range []string{"/api/tasks", "/api/tasks?confirm=false", "/api/tasks?confirm=maybe"} {
		rec := doRequest(t, srv, http.MethodDelete, target, "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("%s: expected 409 got %d", target, rec.Code)
		}
		if store.Len() != 2 {
			t.Fatalf("%s: declined clear must leave tasks intact", target)
		}
	}

	if rec := doRequest(t, srv, http.MethodDelete, "/api/tasks?confirm=true", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty collection after confirmed clear")
	}
}

func TestStorageFailureKeepsChangeAndWarns(t *testing.T) {
	srv, store := newTestServer(t, failingPersister{})

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", `{"name":"offline task"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	resp := decode[taskResponse](t, rec)
	if !strings.Contains(resp.Warning, "quota exceeded") {
		t.Fatalf("expected storage warning, got %+v", resp)
	}
	if store.Len() != 1 {
		t.Fatalf("in-memory change must stand")
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/tasks/"+resp.Task.ID, "")
	if rec.Code != http.StatusOK || decode[warningResponse](t, rec).Warning == "" {
		t.Fatalf("expected 200 with warning, got %d (%s)", rec.Code, rec.Body.String())
	}
	if store.Len() != 0 {
		t.Fatalf("delete must apply despite save failure")
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	createViaAPI(t, srv, "one", "")
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["tasks"] != float64(1) {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestMetricsEndpointCountsOperations(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	createViaAPI(t, srv, "counted", "")
	doRequest(t, srv, http.MethodPost, "/api/tasks", `{"name":""}`)
	doRequest(t, srv, http.MethodDelete, "/api/tasks", "")

	rec := doRequest(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`tasklist_task_operations_total{op="create",outcome="ok"} 1`,
		`tasklist_task_operations_total{op="create",outcome="invalid"} 1`,
		`tasklist_task_operations_total{op="clear",outcome="rejected"} 1`,
		`tasklist_requests_total`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
