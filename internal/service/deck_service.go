package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flashquest/internal/models"
	"flashquest/internal/repository"
)

var (
	ErrDeckNotFound    = errors.New("deck not found")
	ErrCardNotFound    = errors.New("card not found")
	ErrDeckNameEmpty   = errors.New("deck name cannot be empty")
	ErrCardFrontEmpty  = errors.New("card front cannot be empty")
	ErrInvalidCardType = errors.New("invalid card type")
)

// DeckService handles deck and card management
type DeckService struct {
	decks *repository.DeckRepository
	study *StudyService
}

// NewDeckService creates a new deck service
func NewDeckService(decks *repository.DeckRepository, study *StudyService) *DeckService {
	return &DeckService{decks: decks, study: study}
}

// ListDecks returns all decks
func (s *DeckService) ListDecks() ([]models.Deck, error) {
	return s.decks.ListDecks()
}

// GetDeck returns a deck with its cards
func (s *DeckService) GetDeck(deckID int64) (*models.Deck, []models.Card, error) {
	deck, err := s.decks.GetDeckByID(deckID)
	if err == sql.ErrNoRows {
		return nil, nil, ErrDeckNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get deck: %w", err)
	}
	cards, err := s.decks.GetDeckCards(deckID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get deck cards: %w", err)
	}
	return deck, cards, nil
}

// CreateDeck creates a new deck owned by the given user
func (s *DeckService) CreateDeck(ownerID int64, name, description string) (*models.Deck, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrDeckNameEmpty
	}
	return s.decks.CreateDeck(ownerID, name, description)
}

// AddCard validates and stores a new card in a deck
func (s *DeckService) AddCard(deckID int64, card *models.Card) (*models.Card, error) {
	if _, err := s.decks.GetDeckByID(deckID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDeckNotFound
		}
		return nil, fmt.Errorf("failed to get deck: %w", err)
	}

	card.DeckID = deckID
	card.Front = strings.TrimSpace(card.Front)
	if card.Front == "" {
		return nil, ErrCardFrontEmpty
	}
	switch card.Type {
	case models.CardTypeFlip, models.CardTypeSingleChoice, models.CardTypeMultiChoice, models.CardTypeFreeText:
	default:
		return nil, ErrInvalidCardType
	}

	return s.decks.AddCard(card)
}

// DeleteCard removes a card from a deck and propagates the removal to
// every loaded run containing the card.
func (s *DeckService) DeleteCard(ctx context.Context, deckID, cardID int64) error {
	if err := s.decks.DeleteCard(deckID, cardID); err != nil {
		if err == sql.ErrNoRows {
			return ErrCardNotFound
		}
		return fmt.Errorf("failed to delete card: %w", err)
	}

	s.study.HandleCardDeleted(ctx, cardID)
	return nil
}
