package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bank-cards/internal/apperrors"
	"github.com/avolkov/bank-cards/internal/middleware"
	"github.com/avolkov/bank-cards/internal/models"
	"github.com/avolkov/bank-cards/internal/service"
)

type Handler struct {
	cards *service.CardService
	auth  *service.AuthService
	log   *logrus.Logger
}

func NewHandler(cards *service.CardService, auth *service.AuthService, log *logrus.Logger) *Handler {
	return &Handler{cards: cards, auth: auth, log: log}
}

type errorResponse struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps domain errors to HTTP statuses; anything untyped is a 500.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if appErr, ok := apperrors.As(err); ok {
		respondJSON(w, appErr.Status, errorResponse{Message: appErr.Message})
		return
	}
	h.log.Errorf("Unhandled error: %v", err)
	respondJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
}

func badRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Message: message})
}

// username extracts the authenticated username or writes a 401.
func username(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, ok := middleware.UsernameFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Message: "not authenticated"})
		return "", false
	}
	return name, true
}

func cardID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["cardId"], 10, 64)
}

func pageOptions(r *http.Request) models.PageOptions {
	opts := models.PageOptions{}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		opts.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil {
		opts.Size = v
	}
	opts.Normalize()
	return opts
}
