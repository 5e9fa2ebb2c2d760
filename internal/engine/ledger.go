package engine

import "flashquest/internal/models"

// Ledger records the outcome of each card in the current run.
// Once a card has a correct or incorrect entry it can never be rescored;
// a skipped entry may be upgraded exactly once to correct or incorrect.
type Ledger struct {
	entries map[int64]models.Outcome
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[int64]models.Outcome)}
}

// Restore replaces the ledger contents, used when resuming a session
func (l *Ledger) Restore(entries map[int64]models.Outcome) {
	l.entries = make(map[int64]models.Outcome, len(entries))
	for id, outcome := range entries {
		l.entries[id] = outcome
	}
}

// Record sets the outcome for a card. It returns false when the entry
// is immutable (already answered correct or incorrect) and the attempt
// must be ignored.
func (l *Ledger) Record(cardID int64, correct bool) bool {
	existing, ok := l.entries[cardID]
	if ok && existing != models.OutcomeSkipped {
		return false
	}
	if correct {
		l.entries[cardID] = models.OutcomeCorrect
	} else {
		l.entries[cardID] = models.OutcomeIncorrect
	}
	return true
}

// Skip marks a card as skipped, only when no outcome exists yet
func (l *Ledger) Skip(cardID int64) bool {
	if _, ok := l.entries[cardID]; ok {
		return false
	}
	l.entries[cardID] = models.OutcomeSkipped
	return true
}

// Outcome returns the recorded outcome for a card, if any
func (l *Ledger) Outcome(cardID int64) (models.Outcome, bool) {
	outcome, ok := l.entries[cardID]
	return outcome, ok
}

// Answered reports whether a card has a final correct/incorrect entry
func (l *Ledger) Answered(cardID int64) bool {
	outcome, ok := l.entries[cardID]
	return ok && outcome != models.OutcomeSkipped
}

// Remove drops the entry for a card, used when a card is deleted mid-session
func (l *Ledger) Remove(cardID int64) {
	delete(l.entries, cardID)
}

// Counts returns the number of correct, incorrect and skipped entries
func (l *Ledger) Counts() (correct, incorrect, skipped int) {
	for _, outcome := range l.entries {
		switch outcome {
		case models.OutcomeCorrect:
			correct++
		case models.OutcomeIncorrect:
			incorrect++
		case models.OutcomeSkipped:
			skipped++
		}
	}
	return correct, incorrect, skipped
}

// Len returns the number of cards with any recorded outcome
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Snapshot returns a copy of the ledger contents
func (l *Ledger) Snapshot() map[int64]models.Outcome {
	out := make(map[int64]models.Outcome, len(l.entries))
	for id, outcome := range l.entries {
		out[id] = outcome
	}
	return out
}
