package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lgrondin/tchatbox-backend/internal/models"
	"github.com/lgrondin/tchatbox-backend/internal/store"
)

// fakeUserStore is an in-memory stand-in for the Postgres user store.
type fakeUserStore struct {
	mu      sync.Mutex
	rows    map[string]*models.User
	upserts int
	failing bool
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{rows: make(map[string]*models.User)}
}

func (f *fakeUserStore) LoadAll(ctx context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, u := range f.rows {
		out = append(out, u.Clone())
	}
	return out, nil
}

func (f *fakeUserStore) Upsert(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("store unavailable")
	}
	f.rows[u.Pseudo] = u.Clone()
	f.upserts++
	return nil
}

// fakeMessageStore is an in-memory stand-in for the Mongo message store.
type fakeMessageStore struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (f *fakeMessageStore) Append(ctx context.Context, m models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeMessageStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.msgs {
		if m.ID == id {
			f.msgs = append(f.msgs[:i], f.msgs[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeMessageStore) TrimBroadcast(ctx context.Context, keep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.msgs {
		if m.IsBroadcast() {
			count++
		}
	}
	for count > keep {
		for i, m := range f.msgs {
			if m.IsBroadcast() {
				f.msgs = append(f.msgs[:i], f.msgs[i+1:]...)
				break
			}
		}
		count--
	}
	return nil
}

func (f *fakeMessageStore) LoadBroadcast(ctx context.Context, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.msgs {
		if m.IsBroadcast() {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessageStore) LoadPrivateWith(ctx context.Context, pseudo string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.msgs {
		if !m.IsBroadcast() && (m.From == pseudo || m.To == pseudo) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.msgs {
		if m.IsBroadcast() {
			count++
		}
	}
	return count
}

var _ store.UserStore = (*fakeUserStore)(nil)
var _ store.MessageStore = (*fakeMessageStore)(nil)

// fakeConn records events written to one session.
type fakeConn struct {
	mu     sync.Mutex
	events []recordedEvent
	closed bool
}

type recordedEvent struct {
	Event string
	Data  interface{}
}

func (c *fakeConn) WriteEvent(event string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, recordedEvent{Event: event, Data: data})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) named(event string) []recordedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []recordedEvent
	for _, e := range c.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) last(event string) (recordedEvent, bool) {
	evs := c.named(event)
	if len(evs) == 0 {
		return recordedEvent{}, false
	}
	return evs[len(evs)-1], true
}

// seedUser loads a ready-made record into the registry without going through
// registration (no hashing cost).
func seedUser(reg *Registry, f *fakeUserStore, u *models.User) {
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Unix(1700000000, 0).UTC()
	}
	f.mu.Lock()
	f.rows[u.Pseudo] = u.Clone()
	f.mu.Unlock()
	reg.mu.Lock()
	reg.users[u.Pseudo] = u.Clone()
	reg.mu.Unlock()
}
