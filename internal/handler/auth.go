package handler

import (
	"encoding/json"
	"net/http"

	"github.com/avolkov/bank-cards/internal/models"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string      `json:"token"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 50 {
		badRequest(w, "username must be between 3 and 50 characters")
		return
	}
	if req.Email == "" {
		badRequest(w, "email is required")
		return
	}
	if len(req.Password) < 6 {
		badRequest(w, "password must be at least 6 characters")
		return
	}

	if _, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully"})
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{Token: token, Username: user.Username, Role: user.Role})
}
