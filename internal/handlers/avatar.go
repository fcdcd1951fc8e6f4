package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/storage"
	"github.com/userhub/apiserver/internal/store"
)

const (
	maxAvatarBytes  = 8 << 20
	formFieldAvatar = "avatar"
	avatarImagePath = "/users/me/avatar"
)

// AvatarHandler stores and serves profile images through object storage.
// Uploading sets the user's image field to the avatar path.
type AvatarHandler struct {
	userService *services.UserService
	objects     storage.ObjectStorage
}

func NewAvatarHandler(userService *services.UserService, objects storage.ObjectStorage) *AvatarHandler {
	return &AvatarHandler{
		userService: userService,
		objects:     objects,
	}
}

// AvatarRouter registers avatar routes on the given (already authenticated)
// router.
func AvatarRouter(r chi.Router, userService *services.UserService, objects storage.ObjectStorage) {
	handler := NewAvatarHandler(userService, objects)

	r.Put("/", handler.Upload)
	r.Get("/", handler.Download)
}

// Upload replaces the authenticated user's avatar.
func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read avatar file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "avatar file is empty")
		return
	}
	if len(data) > maxAvatarBytes {
		writeError(w, http.StatusBadRequest, "avatar file is too large")
		return
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "avatar must be an image")
		return
	}

	key := avatarKey(user.ID)
	if err := h.objects.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		slog.Error("avatar upload failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	image := avatarImagePath
	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, store.ProfileUpdate{Image: &image})
	if err != nil {
		slog.Error("avatar profile update failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, UpdateProfileResponse{
		Success: true,
		Data:    profileView(updated),
	})
}

// Download streams the authenticated user's avatar.
func (h *AvatarHandler) Download(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	reader, err := h.objects.Get(r.Context(), avatarKey(user.ID))
	if err != nil {
		writeError(w, http.StatusNotFound, "avatar not found")
		return
	}
	defer reader.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		slog.Error("avatar read failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	head = head[:n]

	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(head); err != nil {
		return
	}
	_, _ = io.Copy(w, reader)
}

func avatarKey(userID int) string {
	return fmt.Sprintf("avatars/%d", userID)
}
