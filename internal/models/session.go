package models

import "time"

// SessionStatus is the lifecycle state of a study session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Outcome is the recorded result for a single card in a run
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomeSkipped   Outcome = "skipped"
)

// StudySession represents one run through a fixed set of cards
type StudySession struct {
	ID               int64
	UserID           int64
	DeckID           int64
	Status           SessionStatus
	CardIDs          []int64 // presentation order
	CurrentIndex     int
	StartedAt        time.Time
	CompletedAt      *time.Time
	DurationBaseline int // seconds already persisted from prior loads
	Answers          map[int64]Outcome
	Streak           int
	SessionXP        int
	ConfirmedXP      int // portion of SessionXP already folded into the account
	Score            int // percentage, set at completion
	CorrectCount     int
	IncorrectCount   int
	SkippedCount     int
	XPEarned         int
	LastActivityAt   time.Time
}

// IsTerminal reports whether the session has reached a final state
func (s *StudySession) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionAbandoned
}

// Accuracy returns the fraction of answered cards that were correct
func (s *StudySession) Accuracy() float64 {
	answered := s.CorrectCount + s.IncorrectCount
	if answered == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(answered)
}

// CardResult is a per-card progress update posted at completion
type CardResult struct {
	CardID           int64
	Outcome          Outcome
	TimeSpentSeconds int
}

// SessionSummary is the compact view returned when listing sessions
type SessionSummary struct {
	ID           int64
	DeckID       int64
	DeckName     string
	Status       SessionStatus
	TotalCards   int
	CurrentIndex int
	StartedAt    time.Time
}
