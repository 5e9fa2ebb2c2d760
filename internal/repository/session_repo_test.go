package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"flashquest/internal/database"
	"flashquest/internal/engine"
	"flashquest/internal/models"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping repository test in short mode")
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "repo_test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// seedSession creates a user, a deck with three flip cards and an
// active session over them, returning the user and session ids plus
// the card order.
func seedSession(t *testing.T, db *database.DB) (userID, sessionID int64, cardIDs []int64) {
	t.Helper()

	users := NewUserRepository(db)
	decks := NewDeckRepository(db)
	sessions := NewSessionRepository(db)

	user, err := users.CreateUser("learner@example.com", "hash", "Learner", models.RoleLearner)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	deck, err := decks.CreateDeck(user.ID, "Capitals", "")
	if err != nil {
		t.Fatalf("Failed to create deck: %v", err)
	}
	for _, front := range []string{"France", "Japan", "Kenya"} {
		card, err := decks.AddCard(&models.Card{DeckID: deck.ID, Front: front, Back: front, Type: models.CardTypeFlip})
		if err != nil {
			t.Fatalf("Failed to add card: %v", err)
		}
		cardIDs = append(cardIDs, card.ID)
	}

	session, err := sessions.CreateSession(user.ID, deck.ID, cardIDs)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return user.ID, session.ID, cardIDs
}

func TestSaveProgressFoldsXPOnce(t *testing.T) {
	db := openTestDB(t)
	userID, sessionID, cardIDs := seedSession(t, db)
	users := NewUserRepository(db)
	sessions := NewSessionRepository(db)
	ctx := context.Background()

	snap := engine.ProgressSnapshot{
		CurrentIndex: 1,
		Answers:      map[int64]models.Outcome{cardIDs[0]: models.OutcomeCorrect},
		Streak:       1,
		SessionXP:    30,
		CardOrder:    cardIDs,
	}

	account, err := sessions.SaveProgress(ctx, sessionID, snap)
	if err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	if account.Level != 1 || account.CurrentXP != 30 {
		t.Errorf("SaveProgress() account = %+v, want level 1 with 30 XP", account)
	}

	// The same snapshot pushed again must not fold its XP twice
	account, err = sessions.SaveProgress(ctx, sessionID, snap)
	if err != nil {
		t.Fatalf("SaveProgress() repeat error = %v", err)
	}
	if account.CurrentXP != 30 {
		t.Errorf("SaveProgress() repeat account XP = %d, want 30", account.CurrentXP)
	}

	// Only the XP above the watermark is applied
	snap.SessionXP = 50
	account, err = sessions.SaveProgress(ctx, sessionID, snap)
	if err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	if account.CurrentXP != 50 {
		t.Errorf("SaveProgress() account XP = %d, want 50", account.CurrentXP)
	}

	user, err := users.GetUserByID(userID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.CurrentXP != 50 {
		t.Errorf("stored user XP = %d, want 50", user.CurrentXP)
	}

	session, err := sessions.GetSessionByID(sessionID)
	if err != nil {
		t.Fatalf("GetSessionByID() error = %v", err)
	}
	if session.ConfirmedXP != 50 || session.CurrentIndex != 1 {
		t.Errorf("stored session = confirmed %d index %d, want 50 and 1", session.ConfirmedXP, session.CurrentIndex)
	}
	if session.Answers[cardIDs[0]] != models.OutcomeCorrect {
		t.Errorf("stored answers = %v, want card %d correct", session.Answers, cardIDs[0])
	}
}

func TestSaveProgressCrossesLevels(t *testing.T) {
	db := openTestDB(t)
	_, sessionID, cardIDs := seedSession(t, db)
	sessions := NewSessionRepository(db)

	snap := engine.ProgressSnapshot{SessionXP: 250, CardOrder: cardIDs}
	account, err := sessions.SaveProgress(context.Background(), sessionID, snap)
	if err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}
	// 250 XP from level 1: crosses 100 and 120, landing on level 3
	if account.Level != 3 || account.CurrentXP != 30 || account.NextLevelThreshold != 144 {
		t.Errorf("SaveProgress() account = %+v, want level 3, 30 XP toward 144", account)
	}
}

func TestCompleteSessionIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	userID, sessionID, cardIDs := seedSession(t, db)
	users := NewUserRepository(db)
	sessions := NewSessionRepository(db)
	ctx := context.Background()

	// An autosave landed part of the XP before completion
	snap := engine.ProgressSnapshot{SessionXP: 30, CardOrder: cardIDs}
	if _, err := sessions.SaveProgress(ctx, sessionID, snap); err != nil {
		t.Fatalf("SaveProgress() error = %v", err)
	}

	req := engine.FinalizeRequest{
		Score:          67,
		CorrectCount:   2,
		IncorrectCount: 1,
		SessionXP:      50,
		CardResults: []models.CardResult{
			{CardID: cardIDs[0], Outcome: models.OutcomeCorrect, TimeSpentSeconds: 5},
			{CardID: cardIDs[1], Outcome: models.OutcomeCorrect, TimeSpentSeconds: 7},
			{CardID: cardIDs[2], Outcome: models.OutcomeIncorrect, TimeSpentSeconds: 3},
		},
	}

	resp, err := sessions.CompleteSession(ctx, sessionID, req)
	if err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}
	if resp.XPEarned != 50 {
		t.Errorf("CompleteSession() XPEarned = %d, want 50", resp.XPEarned)
	}
	// Only the 20 XP above the autosaved watermark gets folded
	if resp.Account.CurrentXP != 50 {
		t.Errorf("CompleteSession() account XP = %d, want 50", resp.Account.CurrentXP)
	}

	// The repeat answers with the stored result and the sentinel
	resp, err = sessions.CompleteSession(ctx, sessionID, req)
	if !errors.Is(err, engine.ErrAlreadyCompleted) {
		t.Fatalf("CompleteSession() repeat error = %v, want ErrAlreadyCompleted", err)
	}
	if resp == nil || resp.XPEarned != 50 {
		t.Errorf("CompleteSession() repeat response = %+v, want XPEarned 50", resp)
	}

	user, err := users.GetUserByID(userID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.CurrentXP != 50 {
		t.Errorf("stored user XP = %d after duplicate completion, want 50", user.CurrentXP)
	}

	results, err := sessions.GetCardResults(sessionID)
	if err != nil {
		t.Fatalf("GetCardResults() error = %v", err)
	}
	if len(results) != 3 {
		t.Errorf("GetCardResults() length = %d, want 3 (no duplicate rows)", len(results))
	}

	session, err := sessions.GetSessionByID(sessionID)
	if err != nil {
		t.Fatalf("GetSessionByID() error = %v", err)
	}
	if session.Status != models.SessionCompleted || session.Score != 67 {
		t.Errorf("stored session = %s score %d, want completed with 67", session.Status, session.Score)
	}
}

func TestCompleteSessionRejectsAbandoned(t *testing.T) {
	db := openTestDB(t)
	_, sessionID, _ := seedSession(t, db)
	sessions := NewSessionRepository(db)
	ctx := context.Background()

	if err := sessions.AbandonSession(ctx, sessionID); err != nil {
		t.Fatalf("AbandonSession() error = %v", err)
	}
	// Abandoning again is a no-op
	if err := sessions.AbandonSession(ctx, sessionID); err != nil {
		t.Errorf("AbandonSession() repeat error = %v, want nil", err)
	}

	if _, err := sessions.CompleteSession(ctx, sessionID, engine.FinalizeRequest{}); !errors.Is(err, ErrSessionAbandoned) {
		t.Errorf("CompleteSession() error = %v, want ErrSessionAbandoned", err)
	}
	if _, err := sessions.SaveProgress(ctx, sessionID, engine.ProgressSnapshot{}); err == nil {
		t.Error("SaveProgress() = nil error on an abandoned session")
	}
}
