package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"flashquest/internal/engine"
	"flashquest/internal/models"
	"flashquest/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotSessionOwner = errors.New("session belongs to another user")
	ErrSessionInactive = errors.New("session is not active")
	ErrDeckEmpty       = errors.New("deck has no cards")
)

// StudyService owns the runtime of active study runs. Each user has at
// most one loaded run; loading a session id always tears down the
// previous run first, synchronously, so no state from an earlier run
// can leak into the new one.
type StudyService struct {
	sessions     *repository.SessionRepository
	decks        *repository.DeckRepository
	users        *repository.UserRepository
	achievements *repository.AchievementRepository

	scoring          engine.ScoringConfig
	autosaveInterval time.Duration

	mu     sync.Mutex
	active map[int64]*activeRun // keyed by user id
}

type activeRun struct {
	sessionID int64
	engine    *engine.Engine
	sync      *engine.SyncManager
}

// NewStudyService creates a study service
func NewStudyService(sessions *repository.SessionRepository, decks *repository.DeckRepository, users *repository.UserRepository, achievements *repository.AchievementRepository, autosaveInterval time.Duration) *StudyService {
	return &StudyService{
		sessions:         sessions,
		decks:            decks,
		users:            users,
		achievements:     achievements,
		scoring:          engine.DefaultScoringConfig(),
		autosaveInterval: autosaveInterval,
		active:           make(map[int64]*activeRun),
	}
}

// StartSession creates a session from a deck's cards in shuffled order
// and loads it.
func (s *StudyService) StartSession(ctx context.Context, userID, deckID int64) (*models.StudySession, []models.Card, error) {
	cards, err := s.decks.GetDeckCards(deckID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get deck cards: %w", err)
	}
	if len(cards) == 0 {
		return nil, nil, ErrDeckEmpty
	}

	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})

	cardIDs := make([]int64, len(cards))
	for i, card := range cards {
		cardIDs[i] = card.ID
	}

	session, err := s.sessions.CreateSession(userID, deckID, cardIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	return s.LoadSession(ctx, userID, session.ID)
}

// LoadSession makes a session the user's active run. Any previously
// loaded run is flushed and torn down before the new session is
// fetched, so a fast reload can never land stale writes on fresh state.
func (s *StudyService) LoadSession(ctx context.Context, userID, sessionID int64) (*models.StudySession, []models.Card, error) {
	s.mu.Lock()
	s.teardownLocked(ctx, userID, true)
	s.mu.Unlock()

	session, err := s.sessions.GetSessionByID(sessionID)
	if err == sql.ErrNoRows {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != userID {
		return nil, nil, ErrNotSessionOwner
	}
	if session.Status != models.SessionActive {
		return nil, nil, ErrSessionInactive
	}

	cards, err := s.decks.GetCardsByIDs(session.CardIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session cards: %w", err)
	}
	if len(cards) == 0 {
		// Every card was deleted out from under the session
		if err := s.sessions.AbandonSession(ctx, sessionID); err != nil {
			log.Printf("failed to abandon empty session %d: %v", sessionID, err)
		}
		return nil, nil, engine.ErrNoCards
	}

	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	account := engine.AccountSnapshot{
		Level:              user.Level,
		CurrentXP:          user.CurrentXP,
		NextLevelThreshold: user.NextLevelThreshold,
	}

	// Catalog fetch failure only disables achievement detection; the
	// core scoring and sync flow must never depend on it.
	var detector *engine.Detector
	catalog, err := s.achievements.ListWithUserState(userID)
	if err != nil {
		log.Printf("achievement catalog unavailable for user %d: %v", userID, err)
	} else {
		detector = engine.NewDetector(catalog, nil)
	}

	eng := engine.NewEngine(session, cards, account, detector, s.scoring, nil)
	syncManager := engine.NewSyncManager(eng, s.sessions, s.autosaveInterval)
	syncManager.Start()

	s.registerRun(ctx, userID, &activeRun{
		sessionID: sessionID,
		engine:    eng,
		sync:      syncManager,
	})

	view := eng.SessionView()
	return &view, cards, nil
}

// registerRun installs a run as the user's active run. A run that raced
// in between the load's teardown and this point is torn down here, so a
// displaced run's autosave loop can never outlive its registration and
// push stale snapshots.
func (s *StudyService) registerRun(ctx context.Context, userID int64, run *activeRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked(ctx, userID, false)
	s.active[userID] = run
}

// UnloadSession flushes and tears down the user's active run, used when
// the client navigates away so progress is not silently lost.
func (s *StudyService) UnloadSession(ctx context.Context, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked(ctx, userID, true)
}

// teardownLocked stops the user's run. The final flush is best-effort.
func (s *StudyService) teardownLocked(ctx context.Context, userID int64, flush bool) {
	run, ok := s.active[userID]
	if !ok {
		return
	}
	delete(s.active, userID)

	if flush && run.engine.Status() == models.SessionActive {
		if err := run.sync.FlushNow(ctx); err != nil {
			log.Printf("final flush failed for session %d: %v", run.sessionID, err)
		}
	}
	run.sync.Stop()
}

// run returns the user's active run, verifying the session id matches
func (s *StudyService) run(userID, sessionID int64) (*activeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.active[userID]
	if !ok || run.sessionID != sessionID {
		return nil, ErrSessionNotFound
	}
	return run, nil
}

// RecordAnswer grades a submission and records the outcome. Rescoring
// attempts come back with Accepted=false and change nothing. When the
// answer unlocks an achievement, the unlock is persisted and a sync
// push is forced so it survives an immediate navigation away.
func (s *StudyService) RecordAnswer(ctx context.Context, userID, sessionID, cardID int64, sub engine.Submission) (engine.AnswerResult, error) {
	run, err := s.run(userID, sessionID)
	if err != nil {
		return engine.AnswerResult{}, err
	}

	card, ok := run.engine.CardByID(cardID)
	if !ok {
		return engine.AnswerResult{}, engine.ErrCardNotFound
	}

	result, err := run.engine.RecordAnswer(cardID, engine.Grade(card, sub))
	if err != nil {
		return engine.AnswerResult{}, err
	}

	if result.Achievement != nil {
		if err := s.achievements.Unlock(userID, result.Achievement.ID); err != nil {
			log.Printf("failed to persist achievement %s for user %d: %v", result.Achievement.Code, userID, err)
		}
		if err := run.sync.FlushNow(ctx); err != nil {
			log.Printf("achievement flush failed for session %d: %v", sessionID, err)
		}
	}

	return result, nil
}

// RevealHint applies the hint penalty for a card, once per card
func (s *StudyService) RevealHint(ctx context.Context, userID, sessionID, cardID int64) (bool, int, error) {
	run, err := s.run(userID, sessionID)
	if err != nil {
		return false, 0, err
	}
	applied, err := run.engine.RevealHint(cardID)
	if err != nil {
		return false, 0, err
	}
	return applied, run.engine.Aggregates().SessionXP, nil
}

// Advance moves the run forward one card
func (s *StudyService) Advance(userID, sessionID int64) (int, error) {
	run, err := s.run(userID, sessionID)
	if err != nil {
		return 0, err
	}
	return run.engine.Advance()
}

// Rewind moves the run back one card
func (s *StudyService) Rewind(userID, sessionID int64) (int, error) {
	run, err := s.run(userID, sessionID)
	if err != nil {
		return 0, err
	}
	return run.engine.Rewind()
}

// Skip marks a card skipped without advancing
func (s *StudyService) Skip(userID, sessionID, cardID int64) (bool, error) {
	run, err := s.run(userID, sessionID)
	if err != nil {
		return false, err
	}
	return run.engine.Skip(cardID)
}

// Shuffle re-permutes the unanswered cards of the run
func (s *StudyService) Shuffle(userID, sessionID int64) ([]models.Card, error) {
	run, err := s.run(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := run.engine.Shuffle(); err != nil {
		return nil, err
	}
	return run.engine.Cards(), nil
}

// Restart resets the run to its first card
func (s *StudyService) Restart(userID, sessionID int64) error {
	run, err := s.run(userID, sessionID)
	if err != nil {
		return err
	}
	return run.engine.Restart()
}

// Complete finalizes the run. On success the run is torn down; on
// failure it stays loaded so the client can retry.
func (s *StudyService) Complete(ctx context.Context, userID, sessionID int64, timezoneOffsetMinutes int) (*engine.FinalizeResponse, error) {
	// A client disconnect right after triggering completion must not
	// cancel the in-flight store write.
	ctx = context.WithoutCancel(ctx)

	run, err := s.run(userID, sessionID)
	if err != nil {
		// Duplicate completion after teardown: delegate to the store,
		// which answers idempotently for completed sessions.
		return s.completeDetached(ctx, userID, sessionID, timezoneOffsetMinutes)
	}

	resp, err := run.sync.Finalize(ctx, timezoneOffsetMinutes)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.teardownLocked(ctx, userID, false)
	s.mu.Unlock()

	return resp, nil
}

// completeDetached handles a completion request with no loaded run
func (s *StudyService) completeDetached(ctx context.Context, userID, sessionID int64, timezoneOffsetMinutes int) (*engine.FinalizeResponse, error) {
	session, err := s.sessions.GetSessionByID(sessionID)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}

	req := engine.FinalizeRequest{
		Score:                 session.Score,
		CorrectCount:          session.CorrectCount,
		IncorrectCount:        session.IncorrectCount,
		SkippedCount:          session.SkippedCount,
		DurationSeconds:       session.DurationBaseline,
		SessionXP:             session.SessionXP,
		TimezoneOffsetMinutes: timezoneOffsetMinutes,
	}
	resp, err := s.sessions.CompleteSession(ctx, sessionID, req)
	if errors.Is(err, engine.ErrAlreadyCompleted) {
		return resp, nil
	}
	return resp, err
}

// Abandon terminates a session without scoring
func (s *StudyService) Abandon(ctx context.Context, userID, sessionID int64) error {
	run, err := s.run(userID, sessionID)
	if err == nil {
		if err := run.sync.Abandon(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		s.teardownLocked(ctx, userID, false)
		s.mu.Unlock()
		return nil
	}

	session, err := s.sessions.GetSessionByID(sessionID)
	if err == sql.ErrNoRows {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrNotSessionOwner
	}
	return s.sessions.AbandonSession(ctx, sessionID)
}

// ListActiveSessions returns the user's resumable sessions
func (s *StudyService) ListActiveSessions(userID int64) ([]models.SessionSummary, error) {
	return s.sessions.ListActiveSessions(userID)
}

// GetSession returns a session view with cards. A loaded run answers
// from memory; anything else comes from the store.
func (s *StudyService) GetSession(userID, sessionID int64) (*models.StudySession, []models.Card, error) {
	s.mu.Lock()
	run, ok := s.active[userID]
	s.mu.Unlock()
	if ok && run.sessionID == sessionID {
		view := run.engine.SessionView()
		return &view, run.engine.Cards(), nil
	}

	session, err := s.sessions.GetSessionByID(sessionID)
	if err == sql.ErrNoRows {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, ErrNotSessionOwner
	}
	cards, err := s.decks.GetCardsByIDs(session.CardIDs)
	if err != nil {
		return nil, nil, err
	}
	return session, cards, nil
}

// AchievementCatalog returns the catalog with the user's unlock state
func (s *StudyService) AchievementCatalog(userID int64) ([]models.AchievementStatus, error) {
	return s.achievements.ListWithUserState(userID)
}

// HandleCardDeleted removes a deleted card from every loaded run that
// contains it, re-clamping positions. A run left with zero cards is
// abandoned: it cannot continue.
func (s *StudyService) HandleCardDeleted(ctx context.Context, cardID int64) {
	s.mu.Lock()
	runs := make(map[int64]*activeRun, len(s.active))
	for userID, run := range s.active {
		runs[userID] = run
	}
	s.mu.Unlock()

	for userID, run := range runs {
		err := run.engine.RemoveCard(cardID)
		if errors.Is(err, engine.ErrNoCards) {
			log.Printf("session %d has no cards left after deletion, abandoning", run.sessionID)
			if err := s.Abandon(ctx, userID, run.sessionID); err != nil {
				log.Printf("failed to abandon empty session %d: %v", run.sessionID, err)
			}
		}
	}
}

// SweepIdle abandons stored sessions idle past the timeout and tears
// down any loaded runs that went with them.
func (s *StudyService) SweepIdle(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)

	s.mu.Lock()
	for userID, run := range s.active {
		view := run.engine.SessionView()
		if view.LastActivityAt.Before(cutoff) {
			s.teardownLocked(ctx, userID, false)
		}
	}
	s.mu.Unlock()

	return s.sessions.SweepIdle(cutoff)
}
