package api

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tasklist/view"
)

const sseDataPrefix = "data: "

// updateBroker fans store changes out to SSE subscribers. Each subscriber
// holds at most one pending wake-up; bursts collapse into a single resend.
type updateBroker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newUpdateBroker() *updateBroker {
	return &updateBroker{
		subs: make(map[chan struct{}]struct{}),
		done: make(chan struct{}),
	}
}

// close ends every open stream. http.Server.Shutdown waits for active
// handlers and does not cancel their contexts, so streams must stop first.
func (b *updateBroker) close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *updateBroker) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *updateBroker) unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *updateBroker) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *updateBroker) notify() {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// streamSummary sends the completion summary once on connect and again
// after every store change.
func streamSummary(store TaskStore, broker *updateBroker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)
		logger.WithField("subscribers", broker.subscribers()).Debug("stream client connected")

		for {
			data, err := sonic.Marshal(view.Summarize(store.All()))
			if err != nil {
				logger.WithError(err).Error("encode summary")
				return err
			}
			frame := make([]byte, 0, len(sseDataPrefix)+len(data)+2)
			frame = append(frame, sseDataPrefix...)
			frame = append(frame, data...)
			frame = append(frame, '\n', '\n')
			if _, err := c.Response().Write(frame); err != nil {
				logger.WithError(err).Debug("stream write failed")
				return nil
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case <-broker.done:
				return nil
			case <-ch:
			}
		}
	}
}
