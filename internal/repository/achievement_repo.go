package repository

import (
	"database/sql"
	"time"

	"flashquest/internal/database"
	"flashquest/internal/models"
)

// AchievementRepository handles the achievement catalog and per-user
// unlock state
type AchievementRepository struct {
	db *database.DB
}

// NewAchievementRepository creates a new achievement repository
func NewAchievementRepository(db *database.DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// ListWithUserState returns the catalog annotated with the user's
// unlock state, the payload for client-side trigger evaluation
func (r *AchievementRepository) ListWithUserState(userID int64) ([]models.AchievementStatus, error) {
	query := `
		SELECT a.id, a.code, a.name, a.description, a.icon, ua.unlocked_at
		FROM achievements a
		LEFT JOIN user_achievements ua
		       ON ua.achievement_id = a.id AND ua.user_id = ?
		ORDER BY a.id
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []models.AchievementStatus
	for rows.Next() {
		var status models.AchievementStatus
		var unlockedAt sql.NullTime
		err := rows.Scan(
			&status.ID,
			&status.Code,
			&status.Name,
			&status.Description,
			&status.Icon,
			&unlockedAt,
		)
		if err != nil {
			return nil, err
		}
		if unlockedAt.Valid {
			status.Unlocked = true
			status.UnlockedAt = &unlockedAt.Time
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// GetByCode retrieves a catalog entry by its code
func (r *AchievementRepository) GetByCode(code string) (*models.Achievement, error) {
	achievement := &models.Achievement{}
	err := r.db.QueryRow(
		"SELECT id, code, name, description, icon FROM achievements WHERE code = ?",
		code,
	).Scan(
		&achievement.ID,
		&achievement.Code,
		&achievement.Name,
		&achievement.Description,
		&achievement.Icon,
	)
	if err != nil {
		return nil, err
	}
	return achievement, nil
}

// Unlock records an achievement for a user. Recording an achievement
// the user already holds is a no-op.
func (r *AchievementRepository) Unlock(userID, achievementID int64) error {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM user_achievements WHERE user_id = ? AND achievement_id = ?",
		userID, achievementID,
	).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = r.db.Exec(
		"INSERT INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES (?, ?, ?)",
		userID, achievementID, time.Now(),
	)
	return err
}
