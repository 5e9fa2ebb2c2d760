package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"flashquest/internal/models"
	"flashquest/internal/service"
)

// DeckHandler handles deck and card HTTP requests
type DeckHandler struct {
	deckService *service.DeckService
}

// NewDeckHandler creates a new deck handler
func NewDeckHandler(deckService *service.DeckService) *DeckHandler {
	return &DeckHandler{deckService: deckService}
}

type deckResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CardCount   int    `json:"cardCount"`
}

func toDeckResponse(deck *models.Deck) deckResponse {
	return deckResponse{
		ID:          deck.ID,
		Name:        deck.Name,
		Description: deck.Description,
		CardCount:   deck.CardCount,
	}
}

// List handles GET /api/decks
func (h *DeckHandler) List(w http.ResponseWriter, r *http.Request) {
	decks, err := h.deckService.ListDecks()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list decks", "Error listing decks", err)
		return
	}
	out := make([]deckResponse, len(decks))
	for i := range decks {
		out[i] = toDeckResponse(&decks[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// Get handles GET /api/decks/{deckId}
func (h *DeckHandler) Get(w http.ResponseWriter, r *http.Request) {
	deckID, err := strconv.ParseInt(r.PathValue("deckId"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid deck ID", "", nil)
		return
	}

	deck, cards, err := h.deckService.GetDeck(deckID)
	if err != nil {
		if errors.Is(err, service.ErrDeckNotFound) {
			respondWithError(w, http.StatusNotFound, "Deck not found", "", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load deck", "Error fetching deck", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deck":  toDeckResponse(deck),
		"cards": toCardResponses(cards),
	})
}

// Create handles POST /api/decks (admin)
func (h *DeckHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	deck, err := h.deckService.CreateDeck(UserIDFromContext(r.Context()), req.Name, req.Description)
	if err != nil {
		if errors.Is(err, service.ErrDeckNameEmpty) {
			respondWithError(w, http.StatusBadRequest, err.Error(), "", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to create deck", "Error creating deck", err)
		return
	}
	respondJSON(w, http.StatusCreated, toDeckResponse(deck))
}

// AddCard handles POST /api/decks/{deckId}/cards (admin)
func (h *DeckHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	deckID, err := strconv.ParseInt(r.PathValue("deckId"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid deck ID", "", nil)
		return
	}

	var req struct {
		Front          string   `json:"front"`
		Back           string   `json:"back"`
		Hint           string   `json:"hint"`
		Type           string   `json:"type"`
		Options        []string `json:"options"`
		CorrectOptions []int    `json:"correctOptions"`
		ExpectedAnswer string   `json:"expectedAnswer"`
		Tags           []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	card, err := h.deckService.AddCard(deckID, &models.Card{
		Front:          req.Front,
		Back:           req.Back,
		Hint:           req.Hint,
		Type:           models.CardType(req.Type),
		Options:        req.Options,
		CorrectOptions: req.CorrectOptions,
		ExpectedAnswer: req.ExpectedAnswer,
		Tags:           req.Tags,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDeckNotFound):
			respondWithError(w, http.StatusNotFound, "Deck not found", "", nil)
		case errors.Is(err, service.ErrCardFrontEmpty), errors.Is(err, service.ErrInvalidCardType):
			respondWithError(w, http.StatusBadRequest, err.Error(), "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to add card", "Error adding card", err)
		}
		return
	}
	respondJSON(w, http.StatusCreated, toCardResponses([]models.Card{*card})[0])
}

// DeleteCard handles DELETE /api/decks/{deckId}/cards/{cardId} (admin).
// Active runs containing the card drop it immediately; a run left with
// no cards is abandoned.
func (h *DeckHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	deckID, err := strconv.ParseInt(r.PathValue("deckId"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid deck ID", "", nil)
		return
	}
	cardID, err := strconv.ParseInt(r.PathValue("cardId"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid card ID", "", nil)
		return
	}

	if err := h.deckService.DeleteCard(r.Context(), deckID, cardID); err != nil {
		if errors.Is(err, service.ErrCardNotFound) {
			respondWithError(w, http.StatusNotFound, "Card not found", "", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to delete card", "Error deleting card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
