package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flashquest/internal/database"
	"flashquest/internal/engine"
	"flashquest/internal/models"
)

// ErrSessionAbandoned is returned when a completion request targets a
// session that was abandoned.
var ErrSessionAbandoned = errors.New("session was abandoned")

// SessionRepository handles study session persistence. It implements
// the engine's Store boundary: progress saves fold confirmed XP into
// the owning account inside a transaction so the same XP can never be
// applied twice.
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession inserts a new active session over an ordered card set
func (r *SessionRepository) CreateSession(userID, deckID int64, cardIDs []int64) (*models.StudySession, error) {
	query := `
		INSERT INTO study_sessions (user_id, deck_id, card_order)
		VALUES (?, ?, ?)
	`

	id, err := r.db.ExecReturningID(query, userID, deckID, encodeInt64s(cardIDs))
	if err != nil {
		return nil, err
	}

	return r.GetSessionByID(id)
}

const sessionSelect = `
	SELECT id, user_id, deck_id, status, card_order, current_index,
	       started_at, completed_at, duration_seconds, answers, streak,
	       session_xp, confirmed_xp, score, correct_count, incorrect_count,
	       skipped_count, xp_earned, last_activity_at
	FROM study_sessions
`

// GetSessionByID retrieves a full session
func (r *SessionRepository) GetSessionByID(sessionID int64) (*models.StudySession, error) {
	return scanSession(r.db.QueryRow(sessionSelect+" WHERE id = ?", sessionID))
}

func scanSession(scanner rowScanner) (*models.StudySession, error) {
	session := &models.StudySession{}
	var status, cardOrder, answers string
	var completedAt sql.NullTime

	err := scanner.Scan(
		&session.ID,
		&session.UserID,
		&session.DeckID,
		&status,
		&cardOrder,
		&session.CurrentIndex,
		&session.StartedAt,
		&completedAt,
		&session.DurationBaseline,
		&answers,
		&session.Streak,
		&session.SessionXP,
		&session.ConfirmedXP,
		&session.Score,
		&session.CorrectCount,
		&session.IncorrectCount,
		&session.SkippedCount,
		&session.XPEarned,
		&session.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = models.SessionStatus(status)
	session.CardIDs = decodeInt64s(cardOrder)
	session.Answers = decodeAnswers(answers)
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	return session, nil
}

// ListActiveSessions returns resumable sessions for a user
func (r *SessionRepository) ListActiveSessions(userID int64) ([]models.SessionSummary, error) {
	query := `
		SELECT s.id, s.deck_id, d.name, s.status, s.card_order,
		       s.current_index, s.started_at
		FROM study_sessions s
		JOIN decks d ON d.id = s.deck_id
		WHERE s.user_id = ? AND s.status = 'active'
		ORDER BY s.last_activity_at DESC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.SessionSummary
	for rows.Next() {
		var summary models.SessionSummary
		var status, cardOrder string
		err := rows.Scan(
			&summary.ID,
			&summary.DeckID,
			&summary.DeckName,
			&status,
			&cardOrder,
			&summary.CurrentIndex,
			&summary.StartedAt,
		)
		if err != nil {
			return nil, err
		}
		summary.Status = models.SessionStatus(status)
		summary.TotalCards = len(decodeInt64s(cardOrder))
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// SaveProgress persists an autosave snapshot and folds newly earned XP
// into the account. The confirmed_xp watermark on the session row makes
// the fold idempotent: only XP above the watermark is applied.
func (r *SessionRepository) SaveProgress(ctx context.Context, sessionID int64, snap engine.ProgressSnapshot) (engine.AccountSnapshot, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return engine.AccountSnapshot{}, err
	}
	defer tx.Rollback()

	session, err := scanSession(tx.QueryRow(sessionSelect+" WHERE id = ?", sessionID))
	if err != nil {
		return engine.AccountSnapshot{}, err
	}
	if session.IsTerminal() {
		return engine.AccountSnapshot{}, fmt.Errorf("session %d is %s", sessionID, session.Status)
	}

	account, err := foldXP(tx, session.UserID, snap.SessionXP-session.ConfirmedXP)
	if err != nil {
		return engine.AccountSnapshot{}, err
	}

	confirmed := session.ConfirmedXP
	if snap.SessionXP > confirmed {
		confirmed = snap.SessionXP
	}

	update := `
		UPDATE study_sessions
		SET current_index = ?, answers = ?, streak = ?, session_xp = ?,
		    confirmed_xp = ?, duration_seconds = ?, card_order = ?,
		    last_activity_at = ?
		WHERE id = ?
	`
	_, err = tx.Exec(update,
		snap.CurrentIndex,
		encodeAnswers(snap.Answers),
		snap.Streak,
		snap.SessionXP,
		confirmed,
		snap.DurationSeconds,
		encodeInt64s(snap.CardOrder),
		time.Now(),
		sessionID,
	)
	if err != nil {
		return engine.AccountSnapshot{}, err
	}

	if err := tx.Commit(); err != nil {
		return engine.AccountSnapshot{}, err
	}
	return account, nil
}

// CompleteSession finalizes a session. It is idempotent: when the
// session is already completed the stored result is returned together
// with engine.ErrAlreadyCompleted, which callers treat as success.
func (r *SessionRepository) CompleteSession(ctx context.Context, sessionID int64, req engine.FinalizeRequest) (*engine.FinalizeResponse, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	session, err := scanSession(tx.QueryRow(sessionSelect+" WHERE id = ?", sessionID))
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionCompleted:
		account, err := accountSnapshot(tx, session.UserID)
		if err != nil {
			return nil, err
		}
		return &engine.FinalizeResponse{
			LeveledUp: false,
			NewLevel:  account.Level,
			XPEarned:  session.XPEarned,
			Account:   account,
		}, engine.ErrAlreadyCompleted
	case models.SessionAbandoned:
		return nil, ErrSessionAbandoned
	}

	before, err := accountSnapshot(tx, session.UserID)
	if err != nil {
		return nil, err
	}

	account, err := foldXP(tx, session.UserID, req.SessionXP-session.ConfirmedXP)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	update := `
		UPDATE study_sessions
		SET status = 'completed', completed_at = ?, score = ?,
		    correct_count = ?, incorrect_count = ?, skipped_count = ?,
		    duration_seconds = ?, session_xp = ?, confirmed_xp = ?,
		    xp_earned = ?, last_activity_at = ?
		WHERE id = ?
	`
	_, err = tx.Exec(update,
		now,
		req.Score,
		req.CorrectCount,
		req.IncorrectCount,
		req.SkippedCount,
		req.DurationSeconds,
		req.SessionXP,
		req.SessionXP,
		req.SessionXP,
		now,
		sessionID,
	)
	if err != nil {
		return nil, err
	}

	for _, result := range req.CardResults {
		_, err := tx.Exec(
			"INSERT INTO card_results (session_id, card_id, outcome, time_spent_seconds) VALUES (?, ?, ?, ?)",
			sessionID, result.CardID, string(result.Outcome), result.TimeSpentSeconds,
		)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &engine.FinalizeResponse{
		LeveledUp: account.Level > before.Level,
		NewLevel:  account.Level,
		XPEarned:  req.SessionXP,
		Account:   account,
	}, nil
}

// AbandonSession terminates a session without scoring. Abandoning an
// already-abandoned session is a no-op; a completed session cannot be
// abandoned.
func (r *SessionRepository) AbandonSession(ctx context.Context, sessionID int64) error {
	session, err := r.GetSessionByID(sessionID)
	if err != nil {
		return err
	}
	switch session.Status {
	case models.SessionAbandoned:
		return nil
	case models.SessionCompleted:
		return fmt.Errorf("session %d already completed", sessionID)
	}

	_, err = r.db.Exec(
		"UPDATE study_sessions SET status = 'abandoned', last_activity_at = ? WHERE id = ?",
		time.Now(), sessionID,
	)
	return err
}

// SweepIdle abandons active sessions with no activity since the cutoff
func (r *SessionRepository) SweepIdle(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(
		"UPDATE study_sessions SET status = 'abandoned' WHERE status = 'active' AND last_activity_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetCardResults returns the per-card results stored at completion
func (r *SessionRepository) GetCardResults(sessionID int64) ([]models.CardResult, error) {
	rows, err := r.db.Query(
		"SELECT card_id, outcome, time_spent_seconds FROM card_results WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.CardResult
	for rows.Next() {
		var result models.CardResult
		var outcome string
		if err := rows.Scan(&result.CardID, &outcome, &result.TimeSpentSeconds); err != nil {
			return nil, err
		}
		result.Outcome = models.Outcome(outcome)
		results = append(results, result)
	}
	return results, rows.Err()
}

// foldXP applies the unconfirmed portion of session XP to the account,
// advancing levels with the same math the engine predicts with.
func foldXP(tx *database.Tx, userID int64, delta int) (engine.AccountSnapshot, error) {
	account, err := accountSnapshot(tx, userID)
	if err != nil {
		return engine.AccountSnapshot{}, err
	}
	if delta <= 0 {
		return account, nil
	}

	account, _ = engine.AdvanceLevels(account, delta)

	_, err = tx.Exec(
		"UPDATE users SET level = ?, current_xp = ?, next_level_threshold = ?, updated_at = ? WHERE id = ?",
		account.Level, account.CurrentXP, account.NextLevelThreshold, time.Now(), userID,
	)
	if err != nil {
		return engine.AccountSnapshot{}, err
	}
	return account, nil
}

func accountSnapshot(tx *database.Tx, userID int64) (engine.AccountSnapshot, error) {
	var snap engine.AccountSnapshot
	err := tx.QueryRow(
		"SELECT level, current_xp, next_level_threshold FROM users WHERE id = ?",
		userID,
	).Scan(&snap.Level, &snap.CurrentXP, &snap.NextLevelThreshold)
	return snap, err
}
