package models

import "time"

// Achievement is a catalog entry describing an unlockable badge
type Achievement struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Icon        string
}

// AchievementStatus combines a catalog entry with a user's unlock state
type AchievementStatus struct {
	Achievement
	Unlocked   bool
	UnlockedAt *time.Time
}
