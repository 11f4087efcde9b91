package api

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"tasklist/domain"
	"tasklist/view"
)

// sseRecorder is a flushable ResponseWriter that is safe to read while the
// handler is still writing.
type sseRecorder struct {
	mu     sync.Mutex
	header http.Header
	buf    bytes.Buffer
	code   int
}

func newSSERecorder() *sseRecorder {
	return &sseRecorder{header: make(http.Header)}
}

func (r *sseRecorder) Header() http.Header { return r.header }

func (r *sseRecorder) WriteHeader(code int) {
	r.mu.Lock()
	r.code = code
	r.mu.Unlock()
}

func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *sseRecorder) Flush() {}

func (r *sseRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUpdateBrokerNotify(t *testing.T) {
	b := newUpdateBroker()
	ch := b.subscribe()

	b.notify()
	b.notify()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
	select {
	case <-ch:
		t.Fatal("bursts must collapse into one pending notification")
	default:
	}

	b.unsubscribe(ch)
	b.notify()
	select {
	case <-ch:
		t.Fatal("received notification after unsubscribe")
	default:
	}
	if b.subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestStreamSummarySendsInitialAndUpdates(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := domain.NewStore(nil, logger)
	broker := newUpdateBroker()
	detach := store.Subscribe(func(domain.Change) { broker.notify() })
	defer detach()

	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := newSSERecorder()
	c := e.NewContext(req, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- streamSummary(store, broker, logger)(c) }()

	waitFor(t, time.Second, func() bool { return broker.subscribers() == 1 && strings.Count(rec.String(), sseDataPrefix) == 1 })

	task, err := store.Add(context.Background(), "stream me", domain.PriorityMedium)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	waitFor(t, time.Second, func() bool { return strings.Count(rec.String(), sseDataPrefix) == 2 })
	if _, err := store.Toggle(context.Background(), task.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	waitFor(t, time.Second, func() bool { return strings.Count(rec.String(), sseDataPrefix) == 3 })

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}

	frames := strings.Split(strings.TrimSuffix(rec.String(), "\n\n"), "\n\n")
	want := []view.Summary{{}, {Total: 1}, {Total: 1, Completed: 1, Percent: 100}}
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %q", len(want), rec.String())
	}
	for i, frame := range frames {
		var got view.Summary
		if err := sonic.Unmarshal([]byte(strings.TrimPrefix(frame, sseDataPrefix)), &got); err != nil {
			t.Fatalf("frame %d: invalid json %q: %v", i, frame, err)
		}
		if got != want[i] {
			t.Fatalf("frame %d: got %+v want %+v", i, got, want[i])
		}
	}
	if broker.subscribers() != 0 {
		t.Fatalf("handler must unsubscribe on disconnect")
	}
}

func TestShutdownEndsOpenStreams(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := domain.NewStore(nil, logger)
	srv := NewServer(store, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start("127.0.0.1:0") }()

	var addr net.Addr
	waitFor(t, 2*time.Second, func() bool {
		addr = srv.echo.ListenerAddr()
		return addr != nil
	})

	resp, err := http.Get("http://" + addr.String() + "/api/stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if !strings.HasPrefix(line, sseDataPrefix) {
		t.Fatalf("unexpected first line %q", line)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown with a connected stream: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("shutdown waited %v for the stream", elapsed)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestBrokerCloseEndsStreamHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := domain.NewStore(nil, logger)
	broker := newUpdateBroker()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	rec := newSSERecorder()
	c := e.NewContext(req, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- streamSummary(store, broker, logger)(c) }()
	waitFor(t, time.Second, func() bool { return broker.subscribers() == 1 })

	broker.close()
	broker.close()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler still running after broker close")
	}
}
