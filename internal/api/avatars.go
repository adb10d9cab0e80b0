package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxAvatarSize = 2 << 20 // 2MB

func (s *Server) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		http.Error(w, "avatar storage not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize+(64<<10))
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		http.Error(w, "avatar too large (max 2MB)", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()
	if header.Size > maxAvatarSize {
		http.Error(w, "avatar too large (max 2MB)", http.StatusRequestEntityTooLarge)
		return
	}

	blob, err := s.storage.Put(r.Context(), tenant(r), header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, blob)
}

func (s *Server) serveAvatar(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		http.Error(w, "avatar storage not configured", http.StatusServiceUnavailable)
		return
	}
	key := chi.URLParam(r, "key")
	blob, rc, err := s.storage.Get(r.Context(), tenant(r), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("serveAvatar: copy interrupted", "key", key, "err", err)
	}
}

func (s *Server) deleteAvatar(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		http.Error(w, "avatar storage not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.storage.Delete(r.Context(), tenant(r), chi.URLParam(r, "key")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
