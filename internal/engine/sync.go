package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"flashquest/internal/models"
)

// ErrAlreadyCompleted is returned by a Store when a completion request
// hits a session that is already completed. The sync manager treats it
// as success: finalize is idempotent by contract.
var ErrAlreadyCompleted = errors.New("session already completed")

// FinalizeRequest carries the terminal aggregates of a run
type FinalizeRequest struct {
	Score                 int
	CorrectCount          int
	IncorrectCount        int
	SkippedCount          int
	DurationSeconds       int
	SessionXP             int
	CardResults           []models.CardResult
	TimezoneOffsetMinutes int
}

// FinalizeResponse reports how the account absorbed the run
type FinalizeResponse struct {
	LeveledUp bool
	NewLevel  int
	XPEarned  int
	Account   AccountSnapshot
}

// Store is the persistence boundary the sync manager pushes to
type Store interface {
	// SaveProgress persists an autosave snapshot and returns the
	// confirmed account state after folding in the snapshot's XP.
	SaveProgress(ctx context.Context, sessionID int64, snap ProgressSnapshot) (AccountSnapshot, error)
	// CompleteSession finalizes the session. Implementations return
	// ErrAlreadyCompleted when it is already terminal-completed.
	CompleteSession(ctx context.Context, sessionID int64, req FinalizeRequest) (*FinalizeResponse, error)
	// AbandonSession terminates the session without scoring.
	AbandonSession(ctx context.Context, sessionID int64) error
}

// SyncState is the sync manager's position in its state machine
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncAutosaving
	SyncFinalizing
	SyncCompleted
	SyncFailedRetryable
	SyncAbandoned
)

// SyncManager periodically pushes progress snapshots for one engine and
// owns the terminal finalize/abandon protocol. Autosave failures are
// swallowed; the next tick retries with whatever the state is by then.
type SyncManager struct {
	engine   *Engine
	store    Store
	interval time.Duration

	mu        sync.Mutex
	state     SyncState
	finalized *FinalizeResponse

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncManager creates a sync manager for an engine
func NewSyncManager(engine *Engine, store Store, interval time.Duration) *SyncManager {
	return &SyncManager{
		engine:   engine,
		store:    store,
		interval: interval,
		state:    SyncIdle,
	}
}

// Start launches the autosave loop. It runs until Stop is called or the
// session reaches a terminal state.
func (m *SyncManager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.autosave(ctx)
			}
		}
	}()
}

// Stop cancels the autosave loop and waits for it to exit. An in-flight
// Finalize is never cancelled by Stop: it runs on the caller's context.
func (m *SyncManager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// State returns the current sync state
func (m *SyncManager) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// autosave pushes one best-effort snapshot when there is anything new
func (m *SyncManager) autosave(ctx context.Context) {
	if !m.engine.Dirty() {
		return
	}
	m.mu.Lock()
	if m.state != SyncIdle {
		m.mu.Unlock()
		return
	}
	m.state = SyncAutosaving
	m.mu.Unlock()

	err := m.push(ctx)

	m.mu.Lock()
	if m.state == SyncAutosaving {
		m.state = SyncIdle
	}
	m.mu.Unlock()

	if err != nil {
		// Best-effort: swallowed, retried next tick with newer state.
		log.Printf("autosave failed for session %d: %v", m.engine.SessionID(), err)
	}
}

// push sends the current snapshot and confirms the account state back
// into the engine on success.
func (m *SyncManager) push(ctx context.Context) error {
	snap := m.engine.Snapshot()
	account, err := m.store.SaveProgress(ctx, m.engine.SessionID(), snap)
	if err != nil {
		return err
	}
	m.engine.ConfirmAccount(account, snap.SessionXP)
	m.engine.markSaved(snap)
	return nil
}

// FlushNow forces one synchronous push, used before navigating away and
// after an achievement unlock so progress is durably recorded.
func (m *SyncManager) FlushNow(ctx context.Context) error {
	m.mu.Lock()
	if m.state == SyncFinalizing || m.state == SyncCompleted || m.state == SyncAbandoned {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.push(ctx)
}

// Finalize closes the session. It is idempotent: a store-side "already
// completed" answer is success, and calling Finalize again after local
// completion returns the same response. On failure the state is
// retryable and local state is untouched so the caller can try again.
func (m *SyncManager) Finalize(ctx context.Context, timezoneOffsetMinutes int) (*FinalizeResponse, error) {
	m.mu.Lock()
	if m.finalized != nil {
		resp := m.finalized
		m.mu.Unlock()
		return resp, nil
	}
	if m.state == SyncAbandoned {
		m.mu.Unlock()
		return nil, ErrSessionTerminal
	}
	m.state = SyncFinalizing
	m.mu.Unlock()

	req := m.engine.FinalizePayload(timezoneOffsetMinutes)
	resp, err := m.store.CompleteSession(ctx, m.engine.SessionID(), req)
	if err != nil && !errors.Is(err, ErrAlreadyCompleted) {
		m.mu.Lock()
		m.state = SyncFailedRetryable
		m.mu.Unlock()
		return nil, fmt.Errorf("complete session %d: %w", m.engine.SessionID(), err)
	}
	if resp == nil {
		resp = &FinalizeResponse{}
	}

	m.engine.MarkCompleted(req)
	m.engine.ConfirmAccount(resp.Account, req.SessionXP)

	m.mu.Lock()
	m.state = SyncCompleted
	m.finalized = resp
	m.mu.Unlock()

	m.Stop()
	return resp, nil
}

// Abandon terminates the session without scoring
func (m *SyncManager) Abandon(ctx context.Context) error {
	m.mu.Lock()
	if m.state == SyncCompleted {
		m.mu.Unlock()
		return ErrSessionTerminal
	}
	if m.state == SyncAbandoned {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.store.AbandonSession(ctx, m.engine.SessionID()); err != nil {
		return fmt.Errorf("abandon session %d: %w", m.engine.SessionID(), err)
	}

	m.engine.MarkAbandoned()
	m.mu.Lock()
	m.state = SyncAbandoned
	m.mu.Unlock()

	m.Stop()
	return nil
}
