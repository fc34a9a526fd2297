package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
)

type createCardRequest struct {
	CardHolder string `json:"card_holder"`
}

type transferRequest struct {
	FromCardID int64           `json:"from_card_id"`
	ToCardID   int64           `json:"to_card_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// MyCards returns one page of the caller's cards, newest first.
func (h *Handler) MyCards(w http.ResponseWriter, r *http.Request) {
	name, ok := username(w, r)
	if !ok {
		return
	}

	page, err := h.cards.ListForOwner(r.Context(), name, pageOptions(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// MyActiveCards returns the caller's ACTIVE cards.
func (h *Handler) MyActiveCards(w http.ResponseWriter, r *http.Request) {
	name, ok := username(w, r)
	if !ok {
		return
	}

	cards, err := h.cards.ListActiveForOwner(r.Context(), name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cards)
}

// GetCard returns one card; owners only.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	name, ok := username(w, r)
	if !ok {
		return
	}
	id, err := cardID(r)
	if err != nil {
		badRequest(w, "invalid card id")
		return
	}

	card, err := h.cards.GetCard(r.Context(), id, name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// CreateCard issues a new card for the caller.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	name, ok := username(w, r)
	if !ok {
		return
	}

	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if len(req.CardHolder) < 2 || len(req.CardHolder) > 100 {
		badRequest(w, "card holder name must be between 2 and 100 characters")
		return
	}

	card, err := h.cards.CreateCard(r.Context(), name, req.CardHolder)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, card)
}

// BlockCard blocks the caller's card.
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	name, ok := username(w, r)
	if !ok {
		return
	}
	id, err := cardID(r)
	if err != nil {
		badRequest(w, "invalid card id")
		return
	}

	if err := h.cards.BlockCard(r.Context(), id, name); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Card blocked successfully"})
}

// Transfer moves money between two of the caller's cards.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	name, ok := username(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.cards.Transfer(r.Context(), req.FromCardID, req.ToCardID, req.Amount, name); err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "Transfer completed successfully"})
}
