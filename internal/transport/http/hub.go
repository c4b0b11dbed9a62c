package http

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// fanoutLimit caps concurrent room deliveries so one large room cannot starve
// the others.
const fanoutLimit = 100

// wsFrame is the wire envelope for every client-facing event.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// client is one websocket connection. Identity and room fields are written by
// the connection's read loop before the client joins the hub and never change
// afterwards, so hub fanout may read them under the hub lock.
type client struct {
	conn     *websocket.Conn
	send     chan wsFrame
	userID   string
	username string
	matchID  string
	authed   bool
}

// enqueue never blocks: a stalled reader has its oldest pending frame dropped
// rather than holding up the whole room.
func (c *client) enqueue(f wsFrame) {
	select {
	case c.send <- f:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- f:
		default:
		}
	}
}

// Hub tracks which connections belong to which match room and implements
// app.Receiver, so both the in-process and the Redis pub/sub broadcasters can
// deliver through it.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

func (h *Hub) join(matchID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[matchID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[matchID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for matchID, room := range h.rooms {
		if _, ok := room[c]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, matchID)
			}
		}
	}
}

// Deliver routes one notice to its room, or to one player's connections when
// userID is set (private answer results).
func (h *Hub) Deliver(matchID, userID, event string, data []byte) {
	h.mu.RLock()
	room := h.rooms[matchID]
	targets := make([]*client, 0, len(room))
	for c := range room {
		if userID == "" || c.userID == userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	frame := wsFrame{Event: event, Data: data}
	var eg errgroup.Group
	eg.SetLimit(fanoutLimit)
	for _, c := range targets {
		c := c
		eg.Go(func() error {
			c.enqueue(frame)
			return nil
		})
	}
	_ = eg.Wait()
}

// Players counts connections currently in a room, for the health endpoint.
func (h *Hub) Players() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, room := range h.rooms {
		total += len(room)
	}
	return total
}
