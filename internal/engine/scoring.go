package engine

import (
	"strings"

	"flashquest/internal/models"
)

// ScoringConfig holds the XP award table for a run
type ScoringConfig struct {
	BaseAward        int // XP per correct answer
	StreakBonusEvery int // every Nth consecutive correct gets the multiplier
	StreakMultiplier int // applied to BaseAward on bonus answers
	IncorrectPenalty int // XP subtracted on a wrong answer
	HintPenalty      int // XP cost of revealing a hint
}

// DefaultScoringConfig returns the standard award table
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BaseAward:        10,
		StreakBonusEvery: 5,
		StreakMultiplier: 2,
		IncorrectPenalty: 0,
		HintPenalty:      20,
	}
}

// AnswerScore is the result of scoring one answer event
type AnswerScore struct {
	XPDelta int
	Streak  int
}

// ScoreAnswer converts an answer event and the current streak into an XP
// delta and the new streak value. It is pure: no state is touched.
func ScoreAnswer(cfg ScoringConfig, correct bool, streak int) AnswerScore {
	if !correct {
		return AnswerScore{XPDelta: -cfg.IncorrectPenalty, Streak: 0}
	}
	newStreak := streak + 1
	delta := cfg.BaseAward
	if cfg.StreakBonusEvery > 0 && newStreak%cfg.StreakBonusEvery == 0 {
		delta = cfg.BaseAward * cfg.StreakMultiplier
	}
	return AnswerScore{XPDelta: delta, Streak: newStreak}
}

// Submission is a client answer to a card
type Submission struct {
	// SelfGraded is used for flip cards, where the client reports whether
	// the user judged themselves correct.
	SelfGraded bool
	// SelectedOptions are the chosen option indices for choice cards.
	SelectedOptions []int
	// Text is the free-text answer.
	Text string
}

// Grade decides whether a submission answers the card correctly.
// Flip cards are self-graded by the client; everything else is graded
// here so the result cannot be forged.
func Grade(card models.Card, sub Submission) bool {
	switch card.Type {
	case models.CardTypeFlip:
		return sub.SelfGraded
	case models.CardTypeSingleChoice:
		if len(sub.SelectedOptions) != 1 || len(card.CorrectOptions) != 1 {
			return false
		}
		return sub.SelectedOptions[0] == card.CorrectOptions[0]
	case models.CardTypeMultiChoice:
		return sameOptionSet(sub.SelectedOptions, card.CorrectOptions)
	case models.CardTypeFreeText:
		return normalizeAnswer(sub.Text) == normalizeAnswer(card.ExpectedAnswer)
	}
	return false
}

// sameOptionSet compares two option index lists as sets
func sameOptionSet(a, b []int) bool {
	if len(a) != len(b) || len(b) == 0 {
		return false
	}
	pending := make(map[int]bool, len(b))
	for _, idx := range b {
		pending[idx] = true
	}
	for _, idx := range a {
		if !pending[idx] {
			return false
		}
		delete(pending, idx)
	}
	return len(pending) == 0
}

// normalizeAnswer lowercases and trims a free-text answer for comparison
func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
