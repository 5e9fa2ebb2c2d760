package repository

import (
	"database/sql"
	"time"

	"flashquest/internal/database"
	"flashquest/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user with the default progression state
func (r *UserRepository) CreateUser(email, passwordHash, name, role string) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, name, role)
		VALUES (?, ?, ?, ?)
	`

	id, err := r.db.ExecReturningID(query, email, passwordHash, name, role)
	if err != nil {
		return nil, err
	}

	return r.GetUserByID(id)
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(userID int64) (*models.User, error) {
	return r.scanUser(r.db.QueryRow(userSelect+" WHERE id = ?", userID))
}

// GetUserByEmail retrieves a user by email, or nil when absent
func (r *UserRepository) GetUserByEmail(email string) (*models.User, error) {
	user, err := r.scanUser(r.db.QueryRow(userSelect+" WHERE email = ?", email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

const userSelect = `
	SELECT id, email, password_hash, name, role, level, current_xp,
	       next_level_threshold, created_at, updated_at
	FROM users
`

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Role,
		&user.Level,
		&user.CurrentXP,
		&user.NextLevelThreshold,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserStats aggregates a user's lifetime study history
func (r *UserRepository) GetUserStats(userID int64) (*models.UserStats, error) {
	stats := &models.UserStats{}

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(correct_count), 0),
		       COALESCE(SUM(correct_count + incorrect_count), 0),
		       COALESCE(SUM(xp_earned), 0),
		       COALESCE(AVG(score), 0),
		       MAX(completed_at)
		FROM study_sessions
		WHERE user_id = ? AND status = 'completed'
	`

	var lastStudied sql.NullTime
	err := r.db.QueryRow(query, userID).Scan(
		&stats.TotalSessions,
		&stats.TotalCorrect,
		&stats.TotalAnswered,
		&stats.TotalXPEarned,
		&stats.AverageScore,
		&lastStudied,
	)
	if err != nil {
		return nil, err
	}
	if lastStudied.Valid {
		stats.LastStudiedAt = &lastStudied.Time
	}

	user, err := r.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	stats.CurrentLevel = user.Level
	stats.CurrentXP = user.CurrentXP
	stats.NextThreshold = user.NextLevelThreshold

	return stats, nil
}

// ListLearners returns all non-admin users, used for summary emails
func (r *UserRepository) ListLearners() ([]models.User, error) {
	rows, err := r.db.Query(userSelect + " WHERE role = 'learner' ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.PasswordHash,
			&user.Name,
			&user.Role,
			&user.Level,
			&user.CurrentXP,
			&user.NextLevelThreshold,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateProgression writes the account level state after an XP fold
func (r *UserRepository) UpdateProgression(userID int64, level, currentXP, nextThreshold int) error {
	query := `
		UPDATE users
		SET level = ?, current_xp = ?, next_level_threshold = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, level, currentXP, nextThreshold, time.Now(), userID)
	return err
}
