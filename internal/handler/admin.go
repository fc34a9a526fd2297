package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// AllCards returns one page over every card in the system.
func (h *Handler) AllCards(w http.ResponseWriter, r *http.Request) {
	page, err := h.cards.ListAll(r.Context(), pageOptions(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// CreateCardForUser issues a new card for the user named in the path.
func (h *Handler) CreateCardForUser(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["username"]

	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if len(req.CardHolder) < 2 || len(req.CardHolder) > 100 {
		badRequest(w, "card holder name must be between 2 and 100 characters")
		return
	}

	card, err := h.cards.CreateCard(r.Context(), owner, req.CardHolder)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, card)
}

// ActivateCard sets a card ACTIVE regardless of its current state.
func (h *Handler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	id, err := cardID(r)
	if err != nil {
		badRequest(w, "invalid card id")
		return
	}

	if err := h.cards.ActivateCard(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Card activated successfully"})
}

// DeleteCard removes a card permanently.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := cardID(r)
	if err != nil {
		badRequest(w, "invalid card id")
		return
	}

	if err := h.cards.DeleteCard(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Card deleted successfully"})
}

// UpdateCardStatuses triggers the expiry sweep on demand.
func (h *Handler) UpdateCardStatuses(w http.ResponseWriter, r *http.Request) {
	if err := h.cards.SweepExpired(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Card statuses updated"})
}
