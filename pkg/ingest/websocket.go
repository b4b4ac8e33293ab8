package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// No Origin header means a non-browser client
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// subscriber holds at most one undelivered update; a newer one replaces it.
type subscriber struct {
	updates chan []byte
}

// Hub fans data-bounds updates out to websocket clients. Only the newest
// span matters, so a slow client skips straight to it and an unchanged
// span is never resent.
type Hub struct {
	mu      sync.Mutex
	clients map[*subscriber]struct{}
	span    storage.Span
	latest  []byte
	closed  bool
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*subscriber]struct{})}
}

// Run waits for ctx and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.clients {
		close(sub.updates)
		delete(h.clients, sub)
	}
}

// Publish sends span to every client unless it equals the last one sent.
// It reports whether anything went out.
func (h *Hub) Publish(span storage.Span) (bool, error) {
	msg, err := json.Marshal(NewBoundsUpdate(span))
	if err != nil {
		return false, fmt.Errorf("failed to encode bounds: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || (h.latest != nil && span.Oldest.Equal(h.span.Oldest) && span.Newest.Equal(h.span.Newest)) {
		return false, nil
	}
	h.span, h.latest = span, msg
	for sub := range h.clients {
		sub.offer(msg)
	}
	return true, nil
}

// offer must be called with the hub lock held: Publish is the only sender,
// so after dropping a stale update there is room.
func (s *subscriber) offer(msg []byte) {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- msg
}

// HasClients returns true if there are any connected WebSocket clients
func (h *Hub) HasClients() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients) > 0
}

// subscribe registers a client, primed with the latest bounds. It returns
// nil once the hub has shut down.
func (h *Hub) subscribe() *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	sub := &subscriber{updates: make(chan []byte, 1)}
	if h.latest != nil {
		sub.updates <- h.latest
	}
	h.clients[sub] = struct{}{}
	log.Printf("WebSocket client connected (total: %d)", len(h.clients))
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub]; !ok {
		return
	}
	delete(h.clients, sub)
	log.Printf("WebSocket client disconnected (total: %d)", len(h.clients))
}

// HandleWebSocket handles WebSocket upgrade requests. New clients get the
// current bounds immediately so they don't wait for the next ingest.
func (h *Handler) HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		sub := hub.subscribe()
		if sub == nil {
			return
		}
		defer hub.unsubscribe(sub)

		// Reaches this client through sub even if the span is already known
		if span, err := h.store.Bounds(r.Context(), storage.Talkers); err == nil {
			if _, err := hub.Publish(span); err != nil {
				log.Printf("Failed to publish bounds: %v", err)
			}
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// All writes happen here: gorilla allows one concurrent writer
		go func() {
			defer cancel()
			ticker := time.NewTicker(config.WSPingInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-sub.updates:
					if !ok {
						conn.WriteControl(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
							time.Now().Add(config.WSWriteDeadline))
						conn.Close()
						return
					}
					conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
					if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						log.Printf("WebSocket write error: %v", err)
						conn.Close()
						return
					}
				case <-ticker.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(config.WSWriteDeadline)); err != nil {
						conn.Close()
						return
					}
				}
			}
		}()

		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
			return nil
		})

		// Reads only service control frames and detect the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				return
			}
		}
	}
}
