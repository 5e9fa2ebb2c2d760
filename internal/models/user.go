package models

import "time"

const (
	RoleLearner = "learner"
	RoleAdmin   = "admin"
)

// User represents an account in the system
type User struct {
	ID                 int64
	Email              string
	PasswordHash       string
	Name               string
	Role               string // "learner" or "admin"
	Level              int
	CurrentXP          int
	NextLevelThreshold int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsAdmin reports whether the user may manage decks and cards
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserStats aggregates a user's lifetime study history
type UserStats struct {
	TotalSessions int
	TotalCorrect  int
	TotalAnswered int
	TotalXPEarned int
	AverageScore  float64
	CurrentLevel  int
	CurrentXP     int
	NextThreshold int
	LastStudiedAt *time.Time
}
