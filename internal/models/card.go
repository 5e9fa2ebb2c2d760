package models

import "time"

// CardType identifies how a card is presented and graded
type CardType string

const (
	CardTypeFlip         CardType = "flip"
	CardTypeSingleChoice CardType = "single_choice"
	CardTypeMultiChoice  CardType = "multi_choice"
	CardTypeFreeText     CardType = "free_text"
)

// Card represents a single flashcard within a deck
type Card struct {
	ID             int64
	DeckID         int64
	Front          string
	Back           string
	Hint           string
	Type           CardType
	Options        []string // ordered choices for choice cards
	CorrectOptions []int    // indices into Options
	ExpectedAnswer string   // for free-text cards
	Tags           []string
	CreatedAt      time.Time
}

// HasHint reports whether the card carries hint text
func (c *Card) HasHint() bool {
	return c.Hint != ""
}

// Deck represents a named collection of cards
type Deck struct {
	ID          int64
	OwnerID     int64
	Name        string
	Description string
	CardCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
