package httpapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/guilherme-santos/notifcal/internal"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Hub fans sync results out to websocket subscribers. Slow subscribers
// miss results instead of blocking the sync queue.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan *internal.SyncResult]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[chan *internal.SyncResult]struct{}),
	}
}

func (h *Hub) Publish(res *internal.SyncResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- res:
		default:
			h.logger.Debug("stream subscriber is behind, result dropped", "event_id", res.EventID)
		}
	}
}

func (h *Hub) subscribe() (<-chan *internal.SyncResult, func()) {
	ch := make(chan *internal.SyncResult, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *Hub) serveWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(c.Request.Context())
	results, unsubscribe := h.subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case res := <-results:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, res)
			cancel()
			if err != nil {
				h.logger.Debug("stream subscriber gone", "error", err)
				return
			}
		}
	}
}
