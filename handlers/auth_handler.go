package handlers

import (
	"errors"
	"net/http"

	"github.com/openscrim/tournament-engine/services"
)

type AuthHandler struct {
	authService *services.AdminAuthService
}

func NewAuthHandler(authService *services.AdminAuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Token trades the admin key for a short-lived bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Key string `json:"key"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Key == "" {
		badRequestResponse(w, r, errors.New("key is required"))
		return
	}

	token, err := h.authService.IssueToken(r.Context(), input.Key)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"token": token}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
