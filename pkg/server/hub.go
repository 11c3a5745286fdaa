package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/session"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

// Hub fans session snapshots out to websocket subscribers. It implements
// present.Sink so it can be handed to coordinators directly.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	logger *slog.Logger
}

type subscriber struct {
	events chan present.Event
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Snapshot implements present.Sink.
func (h *Hub) Snapshot(v session.View) {
	h.broadcast(v.ID, present.Event{Type: present.EventSnapshot, Snapshot: &v})
}

// Plan implements present.Sink.
func (h *Hub) Plan(p session.CompositePlan) {
	h.broadcast(p.SessionID, present.Event{Type: present.EventPlan, Plan: &p})
}

// Subscribers returns how many connections follow a session.
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

func (h *Hub) broadcast(id string, ev present.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[id] {
		select {
		case sub.events <- ev:
		default:
			// A slow reader loses intermediate snapshots; the next one supersedes them.
			h.logger.Debug("dropping session event for slow subscriber", "session_id", id, "type", ev.Type)
		}
	}
}

func (h *Hub) subscribe(id string) *subscriber {
	sub := &subscriber{events: make(chan present.Event, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[*subscriber]struct{})
	}
	h.subs[id][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(id string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[id], sub)
	if len(h.subs[id]) == 0 {
		delete(h.subs, id)
	}
}

// Serve upgrades the request and streams events of session id until the
// client goes away. initial is sent first so late subscribers see the
// current state.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id string, initial session.View) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "session_id", id)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "session_id", id)
		}
	}()

	sub := h.subscribe(id)
	defer h.unsubscribe(id, sub)

	// Subscribers only listen; CloseRead cancels ctx when the peer closes.
	ctx := ws.CloseRead(r.Context())

	if err := h.write(ctx, ws, present.Event{Type: present.EventSnapshot, Snapshot: &initial}); err != nil {
		return
	}
	if initial.Plan != nil {
		if err := h.write(ctx, ws, present.Event{Type: present.EventPlan, Plan: initial.Plan}); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("websocket subscriber left", "session_id", id)
			return
		case ev := <-sub.events:
			if err := h.write(ctx, ws, ev); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, ws *websocket.Conn, ev present.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, ws, ev); err != nil {
		h.logger.Debug("websocket write error", "error", err)
		return err
	}
	return nil
}
