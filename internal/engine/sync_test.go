package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flashquest/internal/models"
)

// fakeStore is an in-memory Store for sync tests. Behavior is steered by
// setting the err fields before the call under test.
type fakeStore struct {
	mu sync.Mutex

	saves     int
	completes int
	abandons  int

	lastSnap ProgressSnapshot
	lastReq  FinalizeRequest

	account     AccountSnapshot
	saveErr     error
	completeErr error
	abandonErr  error
	response    *FinalizeResponse
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		account: AccountSnapshot{Level: 1, CurrentXP: 0, NextLevelThreshold: 100},
	}
}

func (s *fakeStore) SaveProgress(ctx context.Context, sessionID int64, snap ProgressSnapshot) (AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.lastSnap = snap
	if s.saveErr != nil {
		return AccountSnapshot{}, s.saveErr
	}
	account, _ := AdvanceLevels(s.account, snap.SessionXP)
	return account, nil
}

func (s *fakeStore) CompleteSession(ctx context.Context, sessionID int64, req FinalizeRequest) (*FinalizeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes++
	s.lastReq = req
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	if s.response != nil {
		return s.response, nil
	}
	account, leveled := AdvanceLevels(s.account, req.SessionXP)
	return &FinalizeResponse{
		LeveledUp: leveled,
		NewLevel:  account.Level,
		XPEarned:  req.SessionXP,
		Account:   account,
	}, nil
}

func (s *fakeStore) AbandonSession(ctx context.Context, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandons++
	return s.abandonErr
}

func (s *fakeStore) calls() (saves, completes, abandons int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.completes, s.abandons
}

func newSyncFixture() (*Engine, *fakeStore, *SyncManager) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2, 3), testAccount(), nil, clock)
	store := newFakeStore()
	m := NewSyncManager(e, store, time.Hour) // ticker never fires in tests
	return e, store, m
}

func TestSyncFlushNowPushesAndConfirms(t *testing.T) {
	e, store, m := newSyncFixture()
	ctx := context.Background()

	e.RecordAnswer(1, true)
	if err := m.FlushNow(ctx); err != nil {
		t.Fatalf("FlushNow() error = %v", err)
	}

	saves, _, _ := store.calls()
	if saves != 1 {
		t.Errorf("SaveProgress calls = %d, want 1", saves)
	}
	if store.lastSnap.SessionXP != 10 || store.lastSnap.Streak != 1 {
		t.Errorf("pushed snapshot = %+v, want XP 10 streak 1", store.lastSnap)
	}
	if e.Dirty() {
		t.Error("Dirty() = true after a successful flush")
	}
	// Server confirmation replaced the local prediction layer
	if snap := e.Account(); snap.CurrentXP != 10 {
		t.Errorf("Account() = %+v, want confirmed 10 XP", snap)
	}
}

func TestSyncAutosaveFailureIsRetryable(t *testing.T) {
	e, store, m := newSyncFixture()
	ctx := context.Background()

	e.RecordAnswer(1, true)
	store.saveErr = errors.New("network down")
	if err := m.FlushNow(ctx); err == nil {
		t.Fatal("FlushNow() = nil, want the push error")
	}
	if !e.Dirty() {
		t.Error("Dirty() = false after a failed push; progress would be lost")
	}
	if m.State() != SyncIdle {
		t.Errorf("State() = %v, want idle for retry", m.State())
	}

	store.saveErr = nil
	if err := m.FlushNow(ctx); err != nil {
		t.Fatalf("FlushNow() retry error = %v", err)
	}
	if e.Dirty() {
		t.Error("Dirty() = true after the retry succeeded")
	}
}

func TestSyncFinalizeIsIdempotent(t *testing.T) {
	e, store, m := newSyncFixture()
	ctx := context.Background()

	e.RecordAnswer(1, true)
	e.RecordAnswer(2, true)
	e.RecordAnswer(3, false)

	first, err := m.Finalize(ctx, 60)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if first.XPEarned != 20 {
		t.Errorf("Finalize() XPEarned = %d, want 20", first.XPEarned)
	}
	if store.lastReq.Score != 67 {
		t.Errorf("finalize request score = %d, want 67 (two of three, rounded)", store.lastReq.Score)
	}
	if m.State() != SyncCompleted {
		t.Errorf("State() = %v, want completed", m.State())
	}
	if e.Status() != models.SessionCompleted {
		t.Errorf("Status() = %v, want completed", e.Status())
	}

	// Repeat returns the cached response without hitting the store again
	second, err := m.Finalize(ctx, 60)
	if err != nil {
		t.Fatalf("Finalize() repeat error = %v", err)
	}
	if second != first {
		t.Error("Finalize() repeat returned a different response object")
	}
	if _, completes, _ := store.calls(); completes != 1 {
		t.Errorf("CompleteSession calls = %d, want 1", completes)
	}
}

func TestSyncFinalizeTreatsAlreadyCompletedAsSuccess(t *testing.T) {
	e, store, m := newSyncFixture()
	ctx := context.Background()

	e.RecordAnswer(1, true)
	store.completeErr = ErrAlreadyCompleted

	resp, err := m.Finalize(ctx, 0)
	if err != nil {
		t.Fatalf("Finalize() error = %v, want success on already-completed", err)
	}
	if resp == nil {
		t.Fatal("Finalize() response = nil")
	}
	if m.State() != SyncCompleted {
		t.Errorf("State() = %v, want completed", m.State())
	}
	if e.Status() != models.SessionCompleted {
		t.Errorf("Status() = %v, want the local mirror completed", e.Status())
	}
}

func TestSyncFinalizeFailureIsRetryable(t *testing.T) {
	e, store, m := newSyncFixture()
	ctx := context.Background()

	e.RecordAnswer(1, true)
	store.completeErr = errors.New("store unavailable")

	if _, err := m.Finalize(ctx, 0); err == nil {
		t.Fatal("Finalize() = nil, want the store error")
	}
	if m.State() != SyncFailedRetryable {
		t.Errorf("State() = %v, want failed-retryable", m.State())
	}
	if e.Status() != models.SessionActive {
		t.Errorf("Status() = %v, want still active after a failed finalize", e.Status())
	}

	store.completeErr = nil
	resp, err := m.Finalize(ctx, 0)
	if err != nil {
		t.Fatalf("Finalize() retry error = %v", err)
	}
	if resp.XPEarned != 10 {
		t.Errorf("Finalize() XPEarned = %d, want 10", resp.XPEarned)
	}
	if _, completes, _ := store.calls(); completes != 2 {
		t.Errorf("CompleteSession calls = %d, want 2", completes)
	}
}

func TestSyncAbandon(t *testing.T) {
	e, store, m := newSyncFixture()
	ctx := context.Background()

	if err := m.Abandon(ctx); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if m.State() != SyncAbandoned {
		t.Errorf("State() = %v, want abandoned", m.State())
	}
	if e.Status() != models.SessionAbandoned {
		t.Errorf("Status() = %v, want abandoned", e.Status())
	}

	// Abandon twice is a no-op, finalize after abandon is rejected
	if err := m.Abandon(ctx); err != nil {
		t.Errorf("Abandon() repeat error = %v, want nil", err)
	}
	if _, _, abandons := store.calls(); abandons != 1 {
		t.Errorf("AbandonSession calls = %d, want 1", abandons)
	}
	if _, err := m.Finalize(ctx, 0); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("Finalize() error = %v, want ErrSessionTerminal", err)
	}
}

func TestSyncAbandonAfterCompleteRejected(t *testing.T) {
	e, _, m := newSyncFixture()
	ctx := context.Background()

	e.RecordAnswer(1, true)
	if _, err := m.Finalize(ctx, 0); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if err := m.Abandon(ctx); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("Abandon() error = %v, want ErrSessionTerminal", err)
	}
}

func TestSyncFlushNowAfterTerminalIsNoOp(t *testing.T) {
	e, store, m := newSyncFixture()
	ctx := context.Background()

	e.RecordAnswer(1, true)
	if _, err := m.Finalize(ctx, 0); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if err := m.FlushNow(ctx); err != nil {
		t.Errorf("FlushNow() error = %v, want nil after completion", err)
	}
	if saves, _, _ := store.calls(); saves != 0 {
		t.Errorf("SaveProgress calls = %d, want 0", saves)
	}
}

func TestSyncStopWithoutStart(t *testing.T) {
	_, _, m := newSyncFixture()
	// Stop before Start must not panic or block
	m.Stop()
}

func TestSyncAutosaveLoop(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2), testAccount(), nil, clock)
	store := newFakeStore()
	m := NewSyncManager(e, store, 5*time.Millisecond)

	e.RecordAnswer(1, true)
	m.Start()
	defer m.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if saves, _, _ := store.calls(); saves > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("autosave loop never pushed a snapshot")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if e.Dirty() {
		t.Error("Dirty() = true after the loop saved")
	}
}
