package handlers

import (
	"encoding/json"
	"net/http"
)

type UploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// UploadAvatar handles avatar image uploads to Cloudinary. The returned
// secure URL is what the client sends back in an update-profile event.
func (g *Gateway) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if g.Uploads == nil {
		http.Error(w, "uploads not available", http.StatusServiceUnavailable)
		return
	}

	// Max 10MB for the avatar image plus form data.
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	url, err := g.Uploads.UploadFileFromHeader(r.Context(), fileHeader, "tchatbox/avatars")
	if err != nil {
		http.Error(w, "Failed to upload file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UploadResponse{
		Success: true,
		Message: "File uploaded successfully",
		URL:     url,
	})
}
