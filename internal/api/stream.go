package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/trivia/internal/domain"
)

const (
	clientBuffer = 16
	writeTimeout = 10 * time.Second
)

// hub fans leaderboard notifications out to websocket clients.
// A client that cannot keep up misses updates instead of blocking the others.
type hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[chan []byte]struct{})}
}

func (h *hub) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, clientBuffer)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}
}

func (h *hub) broadcast(n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", n.Event, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- b:
		default:
		}
	}

	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamLeaderboard sends the current leaderboard, then every update, until the client goes away.
func (a *API) streamLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()

	updates, unsubscribe := a.hub.subscribe()
	defer unsubscribe()

	entries, err := a.lbs.Leaderboard(ctx, domain.LeaderboardFilters{})
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(ctx, "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(newNotification(domain.EventNameLeaderboardUpdated, rankedEntries(entries))); err != nil {
		return
	}

	for {
		select {
		case b := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				slog.ErrorContext(ctx, "api: websocket write failed", "error", err)
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}
