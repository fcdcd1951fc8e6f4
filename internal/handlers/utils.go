package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/userhub/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is the uniform failure payload. Internal error detail is
// logged server-side and never included here.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID < 1 {
		return types.User{}, errors.New("missing authenticated user")
	}
	return user, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}

// coerceAge accepts the age field as a JSON number or a numeric string and
// returns it as an integer. Absent values pass through as nil.
func coerceAge(value any) (*int, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case float64:
		age := int(typed)
		if age < 0 {
			return nil, errors.New("age must be a non-negative number")
		}
		return &age, nil
	case string:
		age, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil || age < 0 {
			return nil, errors.New("age must be a non-negative number")
		}
		return &age, nil
	default:
		return nil, errors.New("age must be a non-negative number")
	}
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
