package services

import (
	"encoding/json"

	"github.com/lgrondin/tchatbox-backend/internal/models"
)

// Signaling is a stateless relay of call negotiation payloads between two
// sessions. The coordinator never inspects the payload; it only stamps the
// sender identity on the way through. Offers are dropped when the target has
// blocked the caller; answers, ICE candidates and hang-ups are not
// block-checked because they only occur after an accepted offer.
// Unknown or offline targets simply receive nothing.
type Signaling struct {
	registry *Registry
	hub      *Hub
}

func NewSignaling(registry *Registry, hub *Hub) *Signaling {
	return &Signaling{registry: registry, hub: hub}
}

// RelayOffer forwards a call offer unless the target has blocked the caller.
func (s *Signaling) RelayOffer(from, to string, payload json.RawMessage) {
	target, ok := s.registry.Get(to)
	if !ok || target.HasBlocked(from) {
		return
	}
	s.relay(models.EventCallUser, from, to, payload)
}

func (s *Signaling) RelayAnswer(from, to string, payload json.RawMessage) {
	s.relay(models.EventMakeAnswer, from, to, payload)
}

func (s *Signaling) RelayIceCandidate(from, to string, payload json.RawMessage) {
	s.relay(models.EventIceCandidate, from, to, payload)
}

func (s *Signaling) RelayHangUp(from, to string, payload json.RawMessage) {
	s.relay(models.EventHangUp, from, to, payload)
}

func (s *Signaling) relay(event, from, to string, payload json.RawMessage) {
	s.hub.Send(to, event, models.SignalEvent{From: from, Data: payload})
}
