package services

import (
	"context"
	"log"

	"github.com/lgrondin/tchatbox-backend/internal/models"
)

// Moderation gates ban and message-deletion behind the configured
// administrator pseudo. A non-admin caller gets ErrNotAdmin, which the
// gateway swallows: no state change, no privileged response.
type Moderation struct {
	registry *Registry
	hub      *Hub
	router   *Router
	admin    string
}

func NewModeration(registry *Registry, hub *Hub, router *Router, adminPseudo string) *Moderation {
	return &Moderation{registry: registry, hub: hub, router: router, admin: adminPseudo}
}

func (m *Moderation) IsAdmin(pseudo string) bool {
	return m.admin != "" && pseudo == m.admin
}

// BanUser sets the terminal ban flag, persists it, and if the target is
// online sends a terminal notice and tears the session down. The record
// itself survives; only login is closed off.
func (m *Moderation) BanUser(ctx context.Context, caller, target string) error {
	if !m.IsAdmin(caller) {
		return ErrNotAdmin
	}

	_, err := m.registry.Update(ctx, target, func(u *models.User) error {
		if u.Banned {
			return ErrNoChange
		}
		u.Banned = true
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("moderation: %s banned by %s", target, caller)
	m.hub.Kick(target, "your account has been banned")
	return nil
}

// DeleteMessage removes one broadcast entry and pushes the rebuilt history to
// every online session. Each session gets its own view (broadcast log plus
// its private conversations), so nobody sees someone else's private traffic.
func (m *Moderation) DeleteMessage(ctx context.Context, caller, id string) error {
	if !m.IsAdmin(caller) {
		return ErrNotAdmin
	}

	if err := m.router.DeleteBroadcast(ctx, id); err != nil {
		return err
	}

	for _, pseudo := range m.hub.Online() {
		history, err := m.router.HistoryFor(ctx, pseudo)
		if err != nil {
			log.Printf("moderation: rebuild history for %s: %v", pseudo, err)
			continue
		}
		m.hub.Send(pseudo, models.EventLoadHistory, history)
	}
	return nil
}
