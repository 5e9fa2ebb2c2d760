package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"flashquest/internal/database"
)

// BackupData represents the complete database backup structure
type BackupData struct {
	Version          string               `json:"version"`
	ExportedAt       time.Time            `json:"exported_at"`
	Users            []UserBackup         `json:"users"`
	Decks            []DeckBackup         `json:"decks"`
	Cards            []CardBackup         `json:"cards"`
	Sessions         []SessionBackup      `json:"sessions"`
	UserAchievements []UnlockBackup       `json:"user_achievements"`
}

// UserBackup represents a user record for backup
type UserBackup struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"password_hash"`
	Name               string    `json:"name"`
	Role               string    `json:"role"`
	Level              int       `json:"level"`
	CurrentXP          int       `json:"current_xp"`
	NextLevelThreshold int       `json:"next_level_threshold"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DeckBackup represents a deck record for backup
type DeckBackup struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CardBackup represents a card record for backup
type CardBackup struct {
	ID             int64     `json:"id"`
	DeckID         int64     `json:"deck_id"`
	Front          string    `json:"front"`
	Back           string    `json:"back"`
	Hint           string    `json:"hint"`
	CardType       string    `json:"card_type"`
	Options        string    `json:"options"`
	CorrectOptions string    `json:"correct_options"`
	ExpectedAnswer string    `json:"expected_answer"`
	Tags           string    `json:"tags"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionBackup represents a study session for backup
type SessionBackup struct {
	ID              int64              `json:"id"`
	UserID          int64              `json:"user_id"`
	DeckID          int64              `json:"deck_id"`
	Status          string             `json:"status"`
	CardOrder       string             `json:"card_order"`
	CurrentIndex    int                `json:"current_index"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at"`
	DurationSeconds int                `json:"duration_seconds"`
	Answers         string             `json:"answers"`
	Streak          int                `json:"streak"`
	SessionXP       int                `json:"session_xp"`
	ConfirmedXP     int                `json:"confirmed_xp"`
	Score           int                `json:"score"`
	CorrectCount    int                `json:"correct_count"`
	IncorrectCount  int                `json:"incorrect_count"`
	SkippedCount    int                `json:"skipped_count"`
	XPEarned        int                `json:"xp_earned"`
	CardResults     []CardResultBackup `json:"card_results"`
}

// CardResultBackup represents a per-card result for backup
type CardResultBackup struct {
	CardID           int64  `json:"card_id"`
	Outcome          string `json:"outcome"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// UnlockBackup represents an achievement unlock for backup
type UnlockBackup struct {
	UserID     int64     `json:"user_id"`
	Code       string    `json:"code"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// BackupService handles database backup and restore operations
type BackupService struct {
	db *database.DB
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB) *BackupService {
	return &BackupService{db: db}
}

// Export creates a complete backup of the database to a file
func (s *BackupService) Export(outputPath string) error {
	log.Println("Starting database export...")

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(file); err != nil {
		return err
	}

	log.Printf("Database exported successfully to %s", outputPath)
	return nil
}

// ExportToWriter exports the database to an io.Writer
func (s *BackupService) ExportToWriter(w io.Writer) error {
	backup := &BackupData{
		Version:    "1.0",
		ExportedAt: time.Now(),
	}

	if err := s.exportUsers(backup); err != nil {
		return fmt.Errorf("failed to export users: %w", err)
	}
	if err := s.exportDecks(backup); err != nil {
		return fmt.Errorf("failed to export decks: %w", err)
	}
	if err := s.exportCards(backup); err != nil {
		return fmt.Errorf("failed to export cards: %w", err)
	}
	if err := s.exportSessions(backup); err != nil {
		return fmt.Errorf("failed to export sessions: %w", err)
	}
	if err := s.exportUnlocks(backup); err != nil {
		return fmt.Errorf("failed to export achievement unlocks: %w", err)
	}

	log.Printf("Exported: %d users, %d decks, %d cards, %d sessions, %d unlocks",
		len(backup.Users), len(backup.Decks), len(backup.Cards),
		len(backup.Sessions), len(backup.UserAchievements))

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(backup)
}

// Import restores a database from a backup file
func (s *BackupService) Import(inputPath string) error {
	log.Printf("Starting database import from %s...", inputPath)

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(file)
}

// ImportFromReader restores a database from a backup reader
func (s *BackupService) ImportFromReader(reader io.Reader) error {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}

	log.Printf("Backup version: %s, exported at: %s", backup.Version, backup.ExportedAt)

	// Import in order of dependencies
	if err := s.importUsers(backup.Users); err != nil {
		return fmt.Errorf("failed to import users: %w", err)
	}
	if err := s.importDecks(backup.Decks); err != nil {
		return fmt.Errorf("failed to import decks: %w", err)
	}
	if err := s.importCards(backup.Cards); err != nil {
		return fmt.Errorf("failed to import cards: %w", err)
	}
	if err := s.importSessions(backup.Sessions); err != nil {
		return fmt.Errorf("failed to import sessions: %w", err)
	}
	if err := s.importUnlocks(backup.UserAchievements); err != nil {
		return fmt.Errorf("failed to import achievement unlocks: %w", err)
	}

	log.Println("Database import completed successfully")
	return nil
}

func (s *BackupService) exportUsers(backup *BackupData) error {
	query := "SELECT id, email, password_hash, name, role, level, current_xp, next_level_threshold, created_at, updated_at FROM users ORDER BY id"
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var u UserBackup
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Level, &u.CurrentXP, &u.NextLevelThreshold, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
		backup.Users = append(backup.Users, u)
	}
	return rows.Err()
}

func (s *BackupService) exportDecks(backup *BackupData) error {
	query := "SELECT id, owner_id, name, description, created_at, updated_at FROM decks ORDER BY id"
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var d DeckBackup
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Description, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return err
		}
		backup.Decks = append(backup.Decks, d)
	}
	return rows.Err()
}

func (s *BackupService) exportCards(backup *BackupData) error {
	query := "SELECT id, deck_id, front, back, hint, card_type, options, correct_options, expected_answer, tags, created_at FROM cards ORDER BY id"
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c CardBackup
		if err := rows.Scan(&c.ID, &c.DeckID, &c.Front, &c.Back, &c.Hint, &c.CardType, &c.Options, &c.CorrectOptions, &c.ExpectedAnswer, &c.Tags, &c.CreatedAt); err != nil {
			return err
		}
		backup.Cards = append(backup.Cards, c)
	}
	return rows.Err()
}

func (s *BackupService) exportSessions(backup *BackupData) error {
	query := "SELECT id, user_id, deck_id, status, card_order, current_index, started_at, completed_at, duration_seconds, answers, streak, session_xp, confirmed_xp, score, correct_count, incorrect_count, skipped_count, xp_earned FROM study_sessions ORDER BY id"
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sb SessionBackup
		var completedAt sql.NullTime
		if err := rows.Scan(&sb.ID, &sb.UserID, &sb.DeckID, &sb.Status, &sb.CardOrder, &sb.CurrentIndex, &sb.StartedAt, &completedAt, &sb.DurationSeconds, &sb.Answers, &sb.Streak, &sb.SessionXP, &sb.ConfirmedXP, &sb.Score, &sb.CorrectCount, &sb.IncorrectCount, &sb.SkippedCount, &sb.XPEarned); err != nil {
			return err
		}
		if completedAt.Valid {
			sb.CompletedAt = &completedAt.Time
		}

		resultRows, err := s.db.Query("SELECT card_id, outcome, time_spent_seconds FROM card_results WHERE session_id = ? ORDER BY card_id", sb.ID)
		if err != nil {
			return err
		}
		for resultRows.Next() {
			var r CardResultBackup
			if err := resultRows.Scan(&r.CardID, &r.Outcome, &r.TimeSpentSeconds); err != nil {
				resultRows.Close()
				return err
			}
			sb.CardResults = append(sb.CardResults, r)
		}
		resultRows.Close()

		backup.Sessions = append(backup.Sessions, sb)
	}
	return rows.Err()
}

func (s *BackupService) exportUnlocks(backup *BackupData) error {
	query := "SELECT ua.user_id, a.code, ua.unlocked_at FROM user_achievements ua JOIN achievements a ON ua.achievement_id = a.id ORDER BY ua.user_id, a.code"
	rows, err := s.db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var u UnlockBackup
		if err := rows.Scan(&u.UserID, &u.Code, &u.UnlockedAt); err != nil {
			return err
		}
		backup.UserAchievements = append(backup.UserAchievements, u)
	}
	return rows.Err()
}

func (s *BackupService) importUsers(users []UserBackup) error {
	log.Printf("Importing %d users...", len(users))
	for _, u := range users {
		query := "INSERT INTO users (id, email, password_hash, name, role, level, current_xp, next_level_threshold, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		if _, err := s.db.Exec(query, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.Level, u.CurrentXP, u.NextLevelThreshold, u.CreatedAt, u.UpdatedAt); err != nil {
			return fmt.Errorf("failed to import user %d: %w", u.ID, err)
		}
	}
	return nil
}

func (s *BackupService) importDecks(decks []DeckBackup) error {
	log.Printf("Importing %d decks...", len(decks))
	for _, d := range decks {
		query := "INSERT INTO decks (id, owner_id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
		if _, err := s.db.Exec(query, d.ID, d.OwnerID, d.Name, d.Description, d.CreatedAt, d.UpdatedAt); err != nil {
			return fmt.Errorf("failed to import deck %d: %w", d.ID, err)
		}
	}
	return nil
}

func (s *BackupService) importCards(cards []CardBackup) error {
	log.Printf("Importing %d cards...", len(cards))
	for _, c := range cards {
		query := "INSERT INTO cards (id, deck_id, front, back, hint, card_type, options, correct_options, expected_answer, tags, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		if _, err := s.db.Exec(query, c.ID, c.DeckID, c.Front, c.Back, c.Hint, c.CardType, c.Options, c.CorrectOptions, c.ExpectedAnswer, c.Tags, c.CreatedAt); err != nil {
			return fmt.Errorf("failed to import card %d: %w", c.ID, err)
		}
	}
	return nil
}

func (s *BackupService) importSessions(sessions []SessionBackup) error {
	log.Printf("Importing %d sessions...", len(sessions))
	for _, sb := range sessions {
		var completedAt interface{}
		if sb.CompletedAt != nil {
			completedAt = *sb.CompletedAt
		}
		query := "INSERT INTO study_sessions (id, user_id, deck_id, status, card_order, current_index, started_at, completed_at, duration_seconds, answers, streak, session_xp, confirmed_xp, score, correct_count, incorrect_count, skipped_count, xp_earned, last_activity_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		if _, err := s.db.Exec(query, sb.ID, sb.UserID, sb.DeckID, sb.Status, sb.CardOrder, sb.CurrentIndex, sb.StartedAt, completedAt, sb.DurationSeconds, sb.Answers, sb.Streak, sb.SessionXP, sb.ConfirmedXP, sb.Score, sb.CorrectCount, sb.IncorrectCount, sb.SkippedCount, sb.XPEarned, sb.StartedAt); err != nil {
			return fmt.Errorf("failed to import session %d: %w", sb.ID, err)
		}

		for _, r := range sb.CardResults {
			resultQuery := "INSERT INTO card_results (session_id, card_id, outcome, time_spent_seconds) VALUES (?, ?, ?, ?)"
			if _, err := s.db.Exec(resultQuery, sb.ID, r.CardID, r.Outcome, r.TimeSpentSeconds); err != nil {
				return fmt.Errorf("failed to import card result for session %d, card %d: %w", sb.ID, r.CardID, err)
			}
		}
	}
	return nil
}

func (s *BackupService) importUnlocks(unlocks []UnlockBackup) error {
	log.Printf("Importing %d achievement unlocks...", len(unlocks))
	for _, u := range unlocks {
		query := "INSERT INTO user_achievements (user_id, achievement_id, unlocked_at) SELECT ?, id, ? FROM achievements WHERE code = ?"
		if _, err := s.db.Exec(query, u.UserID, u.UnlockedAt, u.Code); err != nil {
			return fmt.Errorf("failed to import unlock %s for user %d: %w", u.Code, u.UserID, err)
		}
	}
	return nil
}
