package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/scripttrimmer/api/internal/model"
	"github.com/scripttrimmer/api/internal/progress"
)

const pingInterval = 30 * time.Second

// Relay bridges progress store subscriptions onto WebSocket connections.
// Each connection gets its own subscription; closing the socket only drops
// that subscription, never the job.
type Relay struct {
	store progress.Store

	mu     sync.Mutex
	counts map[string]int
}

// NewRelay creates a new relay
func NewRelay(store progress.Store) *Relay {
	return &Relay{
		store:  store,
		counts: make(map[string]int),
	}
}

// HandleConnection serves one WebSocket client subscribed to a job key.
func (r *Relay) HandleConnection(c *websocket.Conn, key, jobReference string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := r.store.Subscribe(ctx, key)
	if err != nil {
		log.Printf("Warning: subscribe failed for %s: %v", key, err)
		c.WriteMessage(websocket.CloseMessage, []byte{})
		return
	}
	defer sub.Close()

	r.track(key, 1)
	defer r.track(key, -1)

	handshake := model.ConnectionEvent{
		Type:         model.StreamEventConnection,
		Message:      "Connected to progress stream",
		JobReference: jobReference,
	}
	if err := c.WriteJSON(handshake); err != nil {
		return
	}

	latest, err := r.store.Latest(ctx, key)
	if err != nil {
		log.Printf("Warning: latest lookup failed for %s: %v", key, err)
	}
	if latest != nil && latest.Status.IsTerminal() {
		c.WriteJSON(latest)
		c.WriteMessage(websocket.CloseMessage, []byte{})
		return
	}

	pong := make(chan struct{}, 1)

	// Writer goroutine: progress updates plus keep-alive pings.
	go func() {
		defer cancel()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-pong:
				data, _ := json.Marshal(model.WSMessage{Type: model.StreamEventPong})
				if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case update, ok := <-sub.Updates():
				if !ok {
					return
				}
				if err := c.WriteJSON(update); err != nil {
					return
				}
				if update.Status.IsTerminal() {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		}
	}()

	// Reader loop: answers application-level pings and detects disconnects.
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.StreamEventPing {
			select {
			case pong <- struct{}{}:
			default:
			}
		}
	}
}

func (r *Relay) track(key string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[key] += delta
	if r.counts[key] <= 0 {
		delete(r.counts, key)
		log.Printf("Last client left job %s", key)
		return
	}
	log.Printf("Job %s has %d stream client(s)", key, r.counts[key])
}
