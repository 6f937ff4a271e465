package services

import (
	"log"
	"sort"
	"sync"

	"github.com/lgrondin/tchatbox-backend/internal/models"
)

// Conn is the minimal interface a session connection must satisfy. The
// gateway wraps the WebSocket connection; tests use in-memory fakes.
type Conn interface {
	WriteEvent(event string, data interface{}) error
	Close() error
}

// Hub is the session directory: the mapping from pseudo to its single active
// connection. Being in the map is the definition of "online". Bind and
// unbind snapshot the online set under the same lock as the mutation, so the
// presence broadcast that follows always reflects a consistent state.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

// Bind registers the session for a pseudo. A later bind for the same pseudo
// wins: the displaced connection is closed and forgotten.
func (h *Hub) Bind(pseudo string, c Conn) {
	h.mu.Lock()
	old := h.conns[pseudo]
	h.conns[pseudo] = c
	targets, online := h.snapshotLocked()
	h.mu.Unlock()

	if old != nil && old != c {
		_ = old.Close()
	}
	TouchPresence(pseudo)
	broadcastPresence(targets, online)
}

// Unbind removes the session, but only if c still owns the binding; a stale
// disconnect from a displaced connection must not knock the newer one out.
func (h *Hub) Unbind(pseudo string, c Conn) {
	h.mu.Lock()
	cur, ok := h.conns[pseudo]
	if !ok || (c != nil && cur != c) {
		h.mu.Unlock()
		return
	}
	delete(h.conns, pseudo)
	targets, online := h.snapshotLocked()
	h.mu.Unlock()

	ClearPresence(pseudo)
	broadcastPresence(targets, online)
}

// Kick force-terminates a session: terminal notice, close, unbind.
func (h *Hub) Kick(pseudo string, notice string) {
	h.mu.RLock()
	c, ok := h.conns[pseudo]
	h.mu.RUnlock()
	if !ok {
		return
	}
	_ = c.WriteEvent(models.EventForceDisconnect, models.NotificationPayload{Message: notice})
	_ = c.Close()
	h.Unbind(pseudo, c)
}

func (h *Hub) IsOnline(pseudo string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[pseudo]
	return ok
}

// Online returns the sorted online set.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, online := h.snapshotLocked()
	return online
}

// Send delivers one event to one pseudo; reports whether a session was bound.
func (h *Hub) Send(pseudo, event string, data interface{}) bool {
	h.mu.RLock()
	c, ok := h.conns[pseudo]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := c.WriteEvent(event, data); err != nil {
		log.Printf("hub: write %s to %s: %v", event, pseudo, err)
	}
	return true
}

// Broadcast delivers one event to every bound session.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.mu.RLock()
	targets := make(map[string]Conn, len(h.conns))
	for p, c := range h.conns {
		targets[p] = c
	}
	h.mu.RUnlock()

	for p, c := range targets {
		if err := c.WriteEvent(event, data); err != nil {
			log.Printf("hub: broadcast %s to %s: %v", event, p, err)
		}
	}
}

func (h *Hub) snapshotLocked() (map[string]Conn, []string) {
	targets := make(map[string]Conn, len(h.conns))
	online := make([]string, 0, len(h.conns))
	for p, c := range h.conns {
		targets[p] = c
		online = append(online, p)
	}
	sort.Strings(online)
	return targets, online
}

func broadcastPresence(targets map[string]Conn, online []string) {
	for p, c := range targets {
		if err := c.WriteEvent(models.EventUpdateUsers, online); err != nil {
			log.Printf("hub: presence update to %s: %v", p, err)
		}
	}
}
