package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/finhub/internal/auth"
)

// StreamHub fans out alert/sync-progress events to connected SPA clients
// over a websocket, per user (§6 live feed).
type StreamHub struct {
	log zerolog.Logger

	mu   sync.Mutex
	subs map[string]map[chan streamMessage]struct{}
}

type streamMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewStreamHub builds a new StreamHub.
func NewStreamHub(log zerolog.Logger) *StreamHub {
	return &StreamHub{
		log:  log.With().Str("component", "stream_hub").Logger(),
		subs: make(map[string]map[chan streamMessage]struct{}),
	}
}

// Publish pushes a message to every subscriber currently connected for
// userID. Non-blocking: a slow or gone subscriber never stalls the
// publisher.
func (h *StreamHub) Publish(userID, msgType string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- streamMessage{Type: msgType, Payload: payload}:
		default:
		}
	}
}

func (h *StreamHub) subscribe(userID string) chan streamMessage {
	ch := make(chan streamMessage, 16)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan streamMessage]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *StreamHub) unsubscribe(userID string, ch chan streamMessage) {
	h.mu.Lock()
	delete(h.subs[userID], ch)
	if len(h.subs[userID]) == 0 {
		delete(h.subs, userID)
	}
	h.mu.Unlock()
	close(ch)
}

// HandleStream upgrades GET /api/events/stream to a websocket and relays
// this user's published events until the client disconnects.
func (h *StreamHub) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ch := h.subscribe(userID)
	defer h.unsubscribe(userID, ch)

	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case msg := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
