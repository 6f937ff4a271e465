package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lgrondin/tchatbox-backend/internal/models"
	"github.com/lgrondin/tchatbox-backend/internal/store"
)

func newRouterWorld(t *testing.T) (*Registry, *fakeUserStore, *Hub, *Router, *fakeMessageStore) {
	t.Helper()
	fs := newFakeUserStore()
	reg := NewRegistry(fs)
	hub := NewHub()
	ms := &fakeMessageStore{}
	return reg, fs, hub, NewRouter(reg, hub, ms), ms
}

func TestBroadcastCapEvictsOldestFIFO(t *testing.T) {
	reg, fs, _, rt, ms := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		if _, err := rt.SendBroadcast(ctx, "Alice", models.MessageText, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("broadcast %d: %v", i, err)
		}
	}

	log := rt.BroadcastLog()
	if len(log) != store.BroadcastHistoryLimit {
		t.Fatalf("log length = %d, want %d", len(log), store.BroadcastHistoryLimit)
	}
	// The oldest 50 are gone; the survivors start at message 50, in order.
	for i, m := range log {
		want := fmt.Sprintf("message %d", i+50)
		if m.Content != want {
			t.Fatalf("log[%d] = %q, want %q", i, m.Content, want)
		}
	}
	if ms.broadcastCount() != store.BroadcastHistoryLimit {
		t.Errorf("store holds %d broadcast messages, want %d", ms.broadcastCount(), store.BroadcastHistoryLimit)
	}
}

func TestBroadcastDeliveredToAllOnline(t *testing.T) {
	reg, fs, hub, rt, _ := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	alice, bob := &fakeConn{}, &fakeConn{}
	hub.Bind("Alice", alice)
	hub.Bind("Bob", bob)

	msg, err := rt.SendBroadcast(context.Background(), "Alice", models.MessageText, "hello room")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if msg.ID == "" || !msg.IsBroadcast() {
		t.Errorf("unexpected message shape: %+v", msg)
	}

	for name, c := range map[string]*fakeConn{"Alice": alice, "Bob": bob} {
		ev, ok := c.last(models.EventChatMessage)
		if !ok {
			t.Fatalf("%s missed the broadcast", name)
		}
		if ev.Data.(models.Message).Content != "hello room" {
			t.Errorf("%s received wrong content", name)
		}
	}
}

func TestBroadcastValidation(t *testing.T) {
	reg, fs, _, rt, _ := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	ctx := context.Background()

	if _, err := rt.SendBroadcast(ctx, "Alice", "video", "x"); err == nil {
		t.Error("unknown message type should be rejected")
	}
	if _, err := rt.SendBroadcast(ctx, "Alice", models.MessageText, "   "); err == nil {
		t.Error("blank text should be rejected")
	}
}

func TestBroadcastSanitizesText(t *testing.T) {
	reg, fs, _, rt, _ := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})

	msg, err := rt.SendBroadcast(context.Background(), "Alice", models.MessageText, "<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if msg.Content == "<script>alert(1)</script>" {
		t.Error("raw HTML survived sanitization")
	}
}

func TestPrivateMessageUnreadAccounting(t *testing.T) {
	reg, fs, hub, rt, _ := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	seedUser(reg, fs, &models.User{Pseudo: "Bob"})
	ctx := context.Background()

	// Alice offline: message persists, unread increments, nothing delivered.
	if _, err := rt.SendPrivate(ctx, "Bob", "Alice", models.MessageText, "salut"); err != nil {
		t.Fatalf("private send: %v", err)
	}
	alice, _ := reg.Get("Alice")
	if alice.Unread["Bob"] != 1 {
		t.Fatalf("Alice.unread[Bob] = %d, want 1", alice.Unread["Bob"])
	}

	// Exactly one increment per routed message.
	if _, err := rt.SendPrivate(ctx, "Bob", "Alice", models.MessageText, "encore"); err != nil {
		t.Fatalf("private send: %v", err)
	}
	alice, _ = reg.Get("Alice")
	if alice.Unread["Bob"] != 2 {
		t.Fatalf("Alice.unread[Bob] = %d, want 2", alice.Unread["Bob"])
	}

	// Mark-read removes the key entirely; absence means read.
	aliceConn := &fakeConn{}
	hub.Bind("Alice", aliceConn)
	if err := rt.MarkRead(ctx, "Alice", "Bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	alice, _ = reg.Get("Alice")
	if _, exists := alice.Unread["Bob"]; exists {
		t.Error("mark-read must remove the unread entry, not zero it")
	}
	ev, ok := aliceConn.last(models.EventUpdateUnread)
	if !ok {
		t.Fatal("reader should receive the refreshed unread map")
	}
	if len(ev.Data.(map[string]int)) != 0 {
		t.Errorf("unread map after mark-read = %v, want empty", ev.Data)
	}
}

func TestPrivateMessageDeliveredWhenOnline(t *testing.T) {
	reg, fs, hub, rt, _ := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	seedUser(reg, fs, &models.User{Pseudo: "Bob"})
	aliceConn := &fakeConn{}
	hub.Bind("Alice", aliceConn)

	if _, err := rt.SendPrivate(context.Background(), "Bob", "Alice", models.MessageText, "salut"); err != nil {
		t.Fatalf("private send: %v", err)
	}

	if ev, ok := aliceConn.last(models.EventPrivateMsg); !ok {
		t.Fatal("online target should receive the message event")
	} else if ev.Data.(models.Message).From != "Bob" {
		t.Error("delivered message has wrong sender")
	}
	if ev, ok := aliceConn.last(models.EventUpdateUnread); !ok {
		t.Fatal("online target should receive the unread update")
	} else if ev.Data.(map[string]int)["Bob"] != 1 {
		t.Errorf("unread update = %v, want Bob:1", ev.Data)
	}
}

func TestPrivateMessageBlockedIsSilentFailure(t *testing.T) {
	reg, fs, hub, rt, ms := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Carol", Blocked: []string{"Dave"}})
	seedUser(reg, fs, &models.User{Pseudo: "Dave"})
	carolConn := &fakeConn{}
	hub.Bind("Carol", carolConn)

	_, err := rt.SendPrivate(context.Background(), "Dave", "Carol", models.MessageText, "hi")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}

	carol, _ := reg.Get("Carol")
	if len(carol.Unread) != 0 {
		t.Error("blocked message must not increment unread")
	}
	if _, ok := carolConn.last(models.EventPrivateMsg); ok {
		t.Error("blocked message must not be delivered")
	}
	if len(ms.msgs) != 0 {
		t.Error("blocked message must not be persisted")
	}
}

func TestPrivateMessageUnwoundWhenUnreadUpdateFails(t *testing.T) {
	reg, fs, _, rt, ms := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	seedUser(reg, fs, &models.User{Pseudo: "Bob"})

	fs.mu.Lock()
	fs.failing = true
	fs.mu.Unlock()

	_, err := rt.SendPrivate(context.Background(), "Alice", "Bob", models.MessageText, "hello")
	if err == nil {
		t.Fatal("expected failure when the unread update cannot persist")
	}

	// The append was rolled back, so a retry cannot duplicate the message.
	private, _ := ms.LoadPrivateWith(context.Background(), "Bob")
	if len(private) != 0 {
		t.Errorf("durable log holds %d private messages, want 0", len(private))
	}

	bob, _ := reg.Get("Bob")
	if len(bob.Unread) != 0 {
		t.Errorf("unread = %v, want empty after failed update", bob.Unread)
	}
}

func TestPrivateMessageUnknownTarget(t *testing.T) {
	reg, fs, _, rt, _ := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Bob"})

	_, err := rt.SendPrivate(context.Background(), "Bob", "Nobody", models.MessageText, "hi")
	if !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestMarkReadWithoutEntryIsNoop(t *testing.T) {
	reg, fs, hub, rt, _ := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	aliceConn := &fakeConn{}
	hub.Bind("Alice", aliceConn)

	if err := rt.MarkRead(context.Background(), "Alice", "Bob"); err != nil {
		t.Fatalf("mark-read without entry: %v", err)
	}
}

func TestHistoryForExcludesOthersPrivateTraffic(t *testing.T) {
	reg, fs, _, rt, _ := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	seedUser(reg, fs, &models.User{Pseudo: "Bob"})
	seedUser(reg, fs, &models.User{Pseudo: "Carol"})
	ctx := context.Background()

	rt.SendBroadcast(ctx, "Alice", models.MessageText, "public")
	rt.SendPrivate(ctx, "Bob", "Alice", models.MessageText, "for alice")
	rt.SendPrivate(ctx, "Bob", "Carol", models.MessageText, "for carol")

	history, err := rt.HistoryFor(ctx, "Alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	for _, m := range history {
		if !m.IsBroadcast() && m.From != "Alice" && m.To != "Alice" {
			t.Errorf("history leaked someone else's private message: %+v", m)
		}
	}
}

func TestDeleteBroadcast(t *testing.T) {
	reg, fs, _, rt, ms := newRouterWorld(t)
	seedUser(reg, fs, &models.User{Pseudo: "Alice"})
	ctx := context.Background()

	msg, _ := rt.SendBroadcast(ctx, "Alice", models.MessageText, "regrettable")
	rt.SendBroadcast(ctx, "Alice", models.MessageText, "fine")

	if err := rt.DeleteBroadcast(ctx, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, m := range rt.BroadcastLog() {
		if m.ID == msg.ID {
			t.Error("deleted message still in log")
		}
	}
	if ms.broadcastCount() != 1 {
		t.Errorf("store count = %d, want 1", ms.broadcastCount())
	}

	// Unknown id is a no-op.
	if err := rt.DeleteBroadcast(ctx, "no-such-id"); err != nil {
		t.Errorf("deleting unknown id: %v", err)
	}
}
