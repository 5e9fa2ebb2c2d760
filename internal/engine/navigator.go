package engine

import (
	"math/rand"

	"flashquest/internal/models"
)

// Navigator tracks the current position in the ordered card list.
// All movement is clamped: advancing past the last card or rewinding
// before the first is a no-op, callers check IsLastCard to branch
// into completion.
type Navigator struct {
	cards []models.Card
	index int
}

// NewNavigator creates a navigator over an ordered card list
func NewNavigator(cards []models.Card) *Navigator {
	return &Navigator{cards: cards}
}

// Advance moves forward one card. Returns false when already at the end.
func (n *Navigator) Advance() bool {
	if n.index >= len(n.cards)-1 {
		return false
	}
	n.index++
	return true
}

// Rewind moves back one card. Returns false when already at the start.
func (n *Navigator) Rewind() bool {
	if n.index <= 0 {
		return false
	}
	n.index--
	return true
}

// Current returns the card at the current position
func (n *Navigator) Current() (models.Card, bool) {
	if n.index < 0 || n.index >= len(n.cards) {
		return models.Card{}, false
	}
	return n.cards[n.index], true
}

// Index returns the current position
func (n *Navigator) Index() int {
	return n.index
}

// SetIndex restores a saved position, clamped to the valid range
func (n *Navigator) SetIndex(i int) {
	if i < 0 {
		i = 0
	}
	if i > len(n.cards)-1 {
		i = len(n.cards) - 1
	}
	if i < 0 {
		i = 0
	}
	n.index = i
}

// IsLastCard reports whether the current card is the final one
func (n *Navigator) IsLastCard() bool {
	return len(n.cards) > 0 && n.index == len(n.cards)-1
}

// Len returns the number of cards
func (n *Navigator) Len() int {
	return len(n.cards)
}

// Cards returns the cards in presentation order
func (n *Navigator) Cards() []models.Card {
	return n.cards
}

// CardIDs returns the card identifiers in presentation order
func (n *Navigator) CardIDs() []int64 {
	ids := make([]int64, len(n.cards))
	for i, card := range n.cards {
		ids[i] = card.ID
	}
	return ids
}

// Shuffle re-permutes the cards that have no final outcome yet, moving
// them to the front of the list, and resets the position to 0. Cards
// already answered keep their relative order at the end. The recorded
// outcomes themselves are untouched.
func (n *Navigator) Shuffle(answered func(cardID int64) bool) {
	remaining := make([]models.Card, 0, len(n.cards))
	done := make([]models.Card, 0)
	for _, card := range n.cards {
		if answered(card.ID) {
			done = append(done, card)
		} else {
			remaining = append(remaining, card)
		}
	}
	rand.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})
	n.cards = append(remaining, done...)
	n.index = 0
}

// Restart resets the position to the first card without reordering
func (n *Navigator) Restart() {
	n.index = 0
}

// Remove deletes a card from the list and re-clamps the position.
// Returns false when the card is not present.
func (n *Navigator) Remove(cardID int64) bool {
	for i, card := range n.cards {
		if card.ID == cardID {
			n.cards = append(n.cards[:i], n.cards[i+1:]...)
			if i < n.index {
				n.index--
			}
			if n.index >= len(n.cards) {
				n.index = len(n.cards) - 1
			}
			if n.index < 0 {
				n.index = 0
			}
			return true
		}
	}
	return false
}
