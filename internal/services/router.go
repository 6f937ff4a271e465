package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lgrondin/tchatbox-backend/internal/models"
	"github.com/lgrondin/tchatbox-backend/internal/store"
	"github.com/lgrondin/tchatbox-backend/pkg/utils"
)

// Router validates, persists and delivers messages, and keeps the unread
// bookkeeping on the target's record. It owns the in-memory broadcast log;
// the durable store mirrors it. Persistence always completes before the
// corresponding outbound event is emitted.
type Router struct {
	registry *Registry
	hub      *Hub
	msgs     store.MessageStore

	mu  sync.Mutex
	log []models.Message // broadcast scope only, capped
}

func NewRouter(registry *Registry, hub *Hub, msgs store.MessageStore) *Router {
	return &Router{registry: registry, hub: hub, msgs: msgs}
}

// Load warms the in-memory broadcast log from the store at startup.
func (rt *Router) Load(ctx context.Context) error {
	msgs, err := rt.msgs.LoadBroadcast(ctx, store.BroadcastHistoryLimit)
	if err != nil {
		return fmt.Errorf("router load: %w", err)
	}
	rt.mu.Lock()
	rt.log = msgs
	rt.mu.Unlock()
	return nil
}

func newMessage(from, to string, mtype models.MessageType, content string) (models.Message, error) {
	if !models.ValidMessageType(mtype) {
		return models.Message{}, &utils.ValidationError{Field: "type", Message: "unknown message type"}
	}
	if mtype == models.MessageText {
		content = utils.SanitizeText(content, utils.MaxMessageLength)
	}
	if content == "" {
		return models.Message{}, &utils.ValidationError{Field: "content", Message: "empty message"}
	}
	return models.Message{
		ID:      uuid.NewString(),
		Type:    mtype,
		From:    from,
		To:      to,
		Content: content,
		Date:    time.Now().UTC(),
	}, nil
}

// SendBroadcast appends to the broadcast log (evicting the oldest entry past
// the cap), persists and fans out to every online session.
func (rt *Router) SendBroadcast(ctx context.Context, from string, mtype models.MessageType, content string) (models.Message, error) {
	msg, err := newMessage(from, models.BroadcastTarget, mtype, content)
	if err != nil {
		return models.Message{}, err
	}

	if err := rt.msgs.Append(ctx, msg); err != nil {
		return models.Message{}, err
	}
	if err := rt.msgs.TrimBroadcast(ctx, store.BroadcastHistoryLimit); err != nil {
		return models.Message{}, err
	}

	rt.mu.Lock()
	rt.log = append(rt.log, msg)
	if len(rt.log) > store.BroadcastHistoryLimit {
		rt.log = rt.log[len(rt.log)-store.BroadcastHistoryLimit:]
	}
	rt.mu.Unlock()

	rt.hub.Broadcast(models.EventChatMessage, msg)
	return msg, nil
}

// SendPrivate routes one private message. Fails with ErrBlocked when the
// target has blocked the sender (the gateway drops that silently) and
// ErrUnknownTarget for a pseudo that was never registered. On success the
// message is persisted, the target's unread counter incremented and, if the
// target is online, the message plus the refreshed unread map are delivered.
func (rt *Router) SendPrivate(ctx context.Context, from, to string, mtype models.MessageType, content string) (models.Message, error) {
	target, ok := rt.registry.Get(to)
	if !ok {
		return models.Message{}, ErrUnknownTarget
	}
	if target.HasBlocked(from) {
		return models.Message{}, ErrBlocked
	}

	msg, err := newMessage(from, to, mtype, content)
	if err != nil {
		return models.Message{}, err
	}

	if err := rt.msgs.Append(ctx, msg); err != nil {
		return models.Message{}, err
	}

	updated, err := rt.registry.Update(ctx, to, func(u *models.User) error {
		u.IncrementUnread(from)
		return nil
	})
	if err != nil {
		// The caller will retry; unwind the append so the retry doesn't
		// duplicate the message in the durable log.
		if derr := rt.msgs.Delete(ctx, msg.ID); derr != nil {
			log.Printf("router: unwind private message %s: %v", msg.ID, derr)
		}
		return models.Message{}, err
	}

	if rt.hub.IsOnline(to) {
		rt.hub.Send(to, models.EventPrivateMsg, msg)
		rt.hub.Send(to, models.EventUpdateUnread, updated.UnreadView())
	}
	return msg, nil
}

// MarkRead drops the reader's unread entry for one sender and pushes the
// refreshed map back to the reader only. Absence of the entry is fine.
func (rt *Router) MarkRead(ctx context.Context, reader, sender string) error {
	updated, err := rt.registry.Update(ctx, reader, func(u *models.User) error {
		if !u.ClearUnread(sender) {
			return ErrNoChange
		}
		return nil
	})
	if err != nil {
		return err
	}
	rt.hub.Send(reader, models.EventUpdateUnread, updated.UnreadView())
	return nil
}

// HistoryFor assembles the login history view: the shared broadcast log plus
// the caller's own private conversations, merged oldest-first. Other users'
// private traffic is never included.
func (rt *Router) HistoryFor(ctx context.Context, pseudo string) ([]models.Message, error) {
	private, err := rt.msgs.LoadPrivateWith(ctx, pseudo)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	history := make([]models.Message, 0, len(rt.log)+len(private))
	history = append(history, rt.log...)
	rt.mu.Unlock()

	history = append(history, private...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Date.Before(history[j].Date)
	})
	return history, nil
}

// BroadcastLog returns a snapshot of the capped broadcast history.
func (rt *Router) BroadcastLog() []models.Message {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]models.Message(nil), rt.log...)
}

// DeleteBroadcast removes one message from the broadcast log and the store.
// Unknown ids are a no-op.
func (rt *Router) DeleteBroadcast(ctx context.Context, id string) error {
	rt.mu.Lock()
	idx := -1
	for i, m := range rt.log {
		if m.ID == id {
			idx = i
			break
		}
	}
	rt.mu.Unlock()
	if idx == -1 {
		return nil
	}

	if err := rt.msgs.Delete(ctx, id); err != nil {
		return err
	}

	rt.mu.Lock()
	for i, m := range rt.log {
		if m.ID == id {
			rt.log = append(rt.log[:i], rt.log[i+1:]...)
			break
		}
	}
	rt.mu.Unlock()
	return nil
}
