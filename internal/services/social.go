package services

import (
	"context"

	"github.com/lgrondin/tchatbox-backend/internal/models"
)

// Social applies friend-request, accept, remove, block and unblock
// transitions to the registry. Invalid transitions are silent no-ops; only
// persistence failures surface as errors. Every applied transition pushes a
// refreshed {friends, requests} view to each online party whose own view
// changed.
type Social struct {
	registry *Registry
	hub      *Hub
}

func NewSocial(registry *Registry, hub *Hub) *Social {
	return &Social{registry: registry, hub: hub}
}

func (s *Social) pushView(u *models.User) {
	if u == nil {
		return
	}
	s.hub.Send(u.Pseudo, models.EventUpdateFriends, u.FriendsView())
}

// SendRequest records a pending request from sender in target's incoming set.
// Ignored when the target is unknown, a block exists in either direction,
// the request is already pending, or the two are already friends.
func (s *Social) SendRequest(ctx context.Context, sender, target string) error {
	if sender == target {
		return nil
	}
	_, updatedTarget, err := s.registry.UpdatePair(ctx, sender, target, func(ua, ub *models.User) error {
		if ub == nil || ua.HasBlocked(target) || ub.HasBlocked(sender) || ub.HasRequestFrom(sender) || ua.IsFriend(target) {
			return ErrNoChange
		}
		ub.AddRequest(sender)
		return nil
	})
	if err != nil {
		return err
	}
	s.pushView(updatedTarget)
	return nil
}

// Respond consumes a pending request from requester in responder's incoming
// set. Accepting makes the edge symmetric; rejecting just clears the request.
// Without a pending request the call is ignored. A block in either direction
// still consumes the request but never creates the friends edge, so blocked
// and friends stay mutually exclusive even if a stale request slipped in.
func (s *Social) Respond(ctx context.Context, responder, requester string, accept bool) error {
	if responder == requester {
		return nil
	}
	updatedResponder, updatedRequester, err := s.registry.UpdatePair(ctx, responder, requester, func(ua, ub *models.User) error {
		if !ua.HasRequestFrom(requester) {
			return ErrNoChange
		}
		ua.RemoveRequest(requester)
		if accept && ub != nil && !ua.HasBlocked(requester) && !ub.HasBlocked(responder) {
			ua.AddFriend(requester)
			ub.AddFriend(responder)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.pushView(updatedResponder)
	if accept {
		s.pushView(updatedRequester)
	}
	return nil
}

// RemoveFriend clears the edge on both sides. Each side is cleared
// independently, so a missing record on one side still unwinds the other.
func (s *Social) RemoveFriend(ctx context.Context, remover, removed string) error {
	if remover == removed {
		return nil
	}
	updatedRemover, updatedRemoved, err := s.registry.UpdatePair(ctx, remover, removed, func(ua, ub *models.User) error {
		had := ua.IsFriend(removed)
		ua.RemoveFriend(removed)
		if ub != nil {
			had = had || ub.IsFriend(remover)
			ub.RemoveFriend(remover)
		}
		if !had {
			return ErrNoChange
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.pushView(updatedRemover)
	s.pushView(updatedRemoved)
	return nil
}

// Block moves the pair to blocker-blocked-target from any state: the friend
// edge and any pending request in either direction are cleared. Idempotent.
func (s *Social) Block(ctx context.Context, blocker, target string) error {
	if blocker == target {
		return nil
	}
	updatedBlocker, updatedTarget, err := s.registry.UpdatePair(ctx, blocker, target, func(ua, ub *models.User) error {
		if ua.HasBlocked(target) {
			return ErrNoChange
		}
		ua.AddBlocked(target)
		ua.RemoveFriend(target)
		ua.RemoveRequest(target)
		if ub != nil {
			ub.RemoveFriend(blocker)
			ub.RemoveRequest(blocker)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.pushView(updatedBlocker)
	s.pushView(updatedTarget)
	return nil
}

// Unblock clears the block edge only; no friendship or request is restored.
// The blocker gets a notification rather than a friends view, since neither
// friends nor requests change.
func (s *Social) Unblock(ctx context.Context, blocker, target string) error {
	changed := false
	_, err := s.registry.Update(ctx, blocker, func(u *models.User) error {
		if !u.HasBlocked(target) {
			return ErrNoChange
		}
		u.RemoveBlocked(target)
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.hub.Send(blocker, models.EventNotification, models.NotificationPayload{Message: target + " unblocked"})
	}
	return nil
}
