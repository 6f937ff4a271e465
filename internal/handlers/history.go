package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lgrondin/tchatbox-backend/internal/models"
)

type HistoryResponse struct {
	Success  bool             `json:"success"`
	Messages []models.Message `json:"messages"`
}

// BroadcastHistory serves the current broadcast log over plain HTTP for
// archive views. Private messages are never exposed here.
func (g *Gateway) BroadcastHistory(w http.ResponseWriter, r *http.Request) {
	msgs := g.Router.BroadcastLog()
	if msgs == nil {
		msgs = []models.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HistoryResponse{Success: true, Messages: msgs})
}
