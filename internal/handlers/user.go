package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/userhub/apiserver/internal/auth"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/storage"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// debugCookieName matches the cookie the original client tooling expected.
// It is only set when the debug-cookie gate is enabled in config.
const debugCookieName = "authorization"

// UserHandler provides the account endpoints: sign-up, sign-in and the
// authenticated profile surface.
type UserHandler struct {
	userService *services.UserService
	debugCookie bool
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(userService *services.UserService, debugCookie bool) *UserHandler {
	return &UserHandler{
		userService: userService,
		debugCookie: debugCookie,
	}
}

// UserRouter registers account routes on the given router. The avatar
// routes are only registered when object storage is configured.
func UserRouter(r chi.Router, userService *services.UserService, tokens *auth.TokenManager, debugCookie bool, objects storage.ObjectStorage) {
	handler := NewUserHandler(userService, debugCookie)

	r.Post("/sign-up", handler.SignUp)
	r.Post("/sign-in", handler.SignIn)
	r.Route("/me", func(r chi.Router) {
		r.Use(RequireAuth(tokens, userService))
		r.Get("/", handler.Me)
		r.Patch("/", handler.UpdateMe)
		if objects != nil {
			r.Route("/avatar", func(r chi.Router) {
				AvatarRouter(r, userService, objects)
			})
		}
	})
}

// RequireAuth verifies the bearer token, resolves its subject to a live
// user and attaches the user to the request context. The downstream
// handler is never invoked on failure.
func RequireAuth(tokens *auth.TokenManager, userService *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := tokens.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := userService.Profile(r.Context(), userID)
			if err != nil {
				// A valid token whose subject no longer exists is
				// indistinguishable from a bad token to the caller.
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignUp creates a new account and returns a bearer token.
func (h *UserHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	age, err := coerceAge(req.Age)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, token, err := h.userService.SignUp(r.Context(), services.SignUpInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Name:     strings.TrimSpace(req.Name),
		Age:      age,
		Gender:   req.Gender,
		Image:    req.Image,
	})
	if err != nil {
		var validationErr *services.ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeError(w, http.StatusBadRequest, validationErr.Message)
		case errors.Is(err, services.ErrEmailTaken):
			writeError(w, http.StatusBadRequest, "email is already in use")
		default:
			slog.Error("sign-up failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.setDebugCookie(w, token)
	writeJSON(w, http.StatusCreated, SignUpResponse{
		Success: true,
		Message: "account created",
		Token:   token,
	})
}

// SignIn verifies credentials and returns a bearer token.
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.userService.SignIn(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		var validationErr *services.ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeError(w, http.StatusBadRequest, validationErr.Message)
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid email or password")
		default:
			slog.Error("sign-in failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.setDebugCookie(w, token)
	writeJSON(w, http.StatusOK, SignInResponse{
		Success:     true,
		AccessToken: token,
	})
}

// Me returns the authenticated user's public profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, profileView(user))
}

// UpdateMe applies a partial update of the authenticated user's profile.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	age, err := coerceAge(req.Age)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user.ID, store.ProfileUpdate{
		Name:   req.Name,
		Age:    age,
		Gender: req.Gender,
		Image:  req.Image,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		slog.Error("profile update failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, UpdateProfileResponse{
		Success: true,
		Data:    profileView(updated),
	})
}

func (h *UserHandler) setDebugCookie(w http.ResponseWriter, token string) {
	if !h.debugCookie {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:  debugCookieName,
		Value: token,
		Path:  "/",
	})
}

type SignUpRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
	Age      any     `json:"age"`
	Gender   *string `json:"gender"`
	Image    *string `json:"image"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Name   *string `json:"name"`
	Age    any     `json:"age"`
	Gender *string `json:"gender"`
	Image  *string `json:"image"`
}

type SignUpResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

type SignInResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
}

// ProfileResponse is the public view of a user. The identifier and the
// password hash are never part of it.
type ProfileResponse struct {
	Email  string  `json:"email"`
	Name   string  `json:"name"`
	Age    *int    `json:"age"`
	Gender *string `json:"gender"`
	Image  *string `json:"image"`
}

type UpdateProfileResponse struct {
	Success bool            `json:"success"`
	Data    ProfileResponse `json:"data"`
}

func profileView(user types.User) ProfileResponse {
	return ProfileResponse{
		Email:  user.Email,
		Name:   user.Name,
		Age:    user.Age,
		Gender: user.Gender,
		Image:  user.Image,
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
