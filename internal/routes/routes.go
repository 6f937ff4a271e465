package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/lgrondin/tchatbox-backend/internal/handlers"
)

func SetupRoutes(r *chi.Mux, gw *handlers.Gateway) {
	// Avatar upload (Cloudinary)
	r.Post("/api/upload", gw.UploadAvatar)

	// Read-only broadcast history for archive views
	r.Get("/api/history", gw.BroadcastHistory)

	// WebSocket endpoint carrying the whole chat event catalog
	r.Get("/ws", gw.ServeWS)
}
