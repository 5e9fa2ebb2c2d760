package engine

import (
	"errors"
	"testing"
	"time"

	"flashquest/internal/models"
)

type testClock struct {
	at time.Time
}

func newTestClock() *testClock {
	return &testClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time { return c.at }

func (c *testClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func testSession() *models.StudySession {
	return &models.StudySession{
		ID:     1,
		UserID: 7,
		DeckID: 3,
		Status: models.SessionActive,
	}
}

func testAccount() AccountSnapshot {
	return AccountSnapshot{Level: 1, CurrentXP: 0, NextLevelThreshold: 100}
}

func newTestEngine(cards []models.Card, account AccountSnapshot, detector *Detector, clock *testClock) *Engine {
	return NewEngine(testSession(), cards, account, detector, DefaultScoringConfig(), clock.now)
}

func TestEngineRecordAnswerNeverRescores(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2), testAccount(), nil, clock)

	first, err := e.RecordAnswer(1, true)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if !first.Accepted || first.XPDelta != 10 || first.Streak != 1 || first.SessionXP != 10 {
		t.Fatalf("RecordAnswer() = %+v, want accepted +10 XP streak 1", first)
	}
	if first.Outcome != models.OutcomeCorrect {
		t.Errorf("RecordAnswer() outcome = %v, want correct", first.Outcome)
	}

	// A second answer for the same card is a no-op: no XP, no streak
	// movement, the original outcome reported back.
	again, err := e.RecordAnswer(1, false)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if again.Accepted {
		t.Error("RecordAnswer() accepted a rescore")
	}
	if again.Outcome != models.OutcomeCorrect {
		t.Errorf("RecordAnswer() outcome = %v, want the original correct", again.Outcome)
	}
	if again.SessionXP != 10 || again.Streak != 1 {
		t.Errorf("RecordAnswer() XP/streak = %d/%d, want unchanged 10/1", again.SessionXP, again.Streak)
	}
}

func TestEngineUnknownCard(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1), testAccount(), nil, clock)

	if _, err := e.RecordAnswer(99, true); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("RecordAnswer() error = %v, want ErrCardNotFound", err)
	}
	if _, err := e.RevealHint(99); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("RevealHint() error = %v, want ErrCardNotFound", err)
	}
	if _, err := e.Skip(99); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("Skip() error = %v, want ErrCardNotFound", err)
	}
}

func TestEngineStreakBonusAndReset(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2, 3, 4, 5, 6), testAccount(), nil, clock)

	for id := int64(1); id <= 5; id++ {
		result, err := e.RecordAnswer(id, true)
		if err != nil {
			t.Fatalf("RecordAnswer(%d) error = %v", id, err)
		}
		want := 10
		if id == 5 {
			want = 20 // fifth in a row doubles
		}
		if result.XPDelta != want {
			t.Errorf("RecordAnswer(%d) XPDelta = %d, want %d", id, result.XPDelta, want)
		}
	}

	agg := e.Aggregates()
	if agg.SessionXP != 60 || agg.Streak != 5 {
		t.Errorf("Aggregates() XP/streak = %d/%d, want 60/5", agg.SessionXP, agg.Streak)
	}

	result, err := e.RecordAnswer(6, false)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if result.XPDelta != 0 || result.Streak != 0 {
		t.Errorf("RecordAnswer() = %+v, want streak reset with no XP", result)
	}
	if result.SessionXP != 60 {
		t.Errorf("RecordAnswer() SessionXP = %d, want 60 held", result.SessionXP)
	}
}

func TestEngineHintPenaltyOncePerCard(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2), testAccount(), nil, clock)

	applied, err := e.RevealHint(1)
	if err != nil || !applied {
		t.Fatalf("RevealHint() = (%v, %v), want applied", applied, err)
	}
	if agg := e.Aggregates(); agg.SessionXP != -20 {
		t.Errorf("Aggregates() SessionXP = %d, want -20", agg.SessionXP)
	}

	applied, err = e.RevealHint(1)
	if err != nil {
		t.Fatalf("RevealHint() error = %v", err)
	}
	if applied {
		t.Error("RevealHint() charged the same card twice")
	}
	if agg := e.Aggregates(); agg.SessionXP != -20 {
		t.Errorf("Aggregates() SessionXP = %d, want -20 unchanged", agg.SessionXP)
	}
	if !e.HintUsed(1) || e.HintUsed(2) {
		t.Error("HintUsed() tracking is wrong")
	}
}

func TestEngineSkipThenAnswer(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1), testAccount(), nil, clock)

	skipped, err := e.Skip(1)
	if err != nil || !skipped {
		t.Fatalf("Skip() = (%v, %v), want recorded", skipped, err)
	}
	if skipped, _ := e.Skip(1); skipped {
		t.Error("Skip() re-recorded a skipped card")
	}

	// Coming back to a skipped card still earns the answer
	result, err := e.RecordAnswer(1, true)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if !result.Accepted || result.XPDelta != 10 {
		t.Errorf("RecordAnswer() = %+v, want accepted +10", result)
	}

	agg := e.Aggregates()
	if agg.CorrectCount != 1 || agg.SkippedCount != 0 {
		t.Errorf("Aggregates() = %+v, want the skip upgraded to correct", agg)
	}
}

func TestEngineShufflePreservesProgress(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2, 3, 4), testAccount(), nil, clock)

	e.RecordAnswer(1, true)
	e.RecordAnswer(2, true)
	e.Advance()
	e.Advance()

	if err := e.Shuffle(); err != nil {
		t.Fatalf("Shuffle() error = %v", err)
	}
	if e.Index() != 0 {
		t.Errorf("Index() after Shuffle() = %d, want 0", e.Index())
	}

	agg := e.Aggregates()
	if agg.CorrectCount != 2 || agg.SessionXP != 20 || agg.Streak != 2 {
		t.Errorf("Aggregates() = %+v, want progress untouched by shuffle", agg)
	}
	cards := e.Cards()
	if cards[2].ID != 1 || cards[3].ID != 2 {
		t.Errorf("Cards() tail = %d,%d , want answered cards 1 then 2", cards[2].ID, cards[3].ID)
	}
}

func TestEngineRestartKeepsOrderAndProgress(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2, 3), testAccount(), nil, clock)

	e.RecordAnswer(1, true)
	e.Advance()
	e.Advance()

	if err := e.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if e.Index() != 0 {
		t.Errorf("Index() after Restart() = %d, want 0", e.Index())
	}
	cards := e.Cards()
	for i, want := range []int64{1, 2, 3} {
		if cards[i].ID != want {
			t.Errorf("Cards()[%d] = %d, want %d", i, cards[i].ID, want)
		}
	}
	if agg := e.Aggregates(); agg.CorrectCount != 1 || agg.SessionXP != 10 {
		t.Errorf("Aggregates() = %+v, want progress untouched by restart", agg)
	}
}

func TestEngineLevelUpPredictedOnce(t *testing.T) {
	clock := newTestClock()
	account := AccountSnapshot{Level: 1, CurrentXP: 95, NextLevelThreshold: 100}
	e := newTestEngine(navCards(1, 2), account, nil, clock)

	result, err := e.RecordAnswer(1, true)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if result.LevelUp == nil {
		t.Fatal("RecordAnswer() LevelUp = nil, want a crossing")
	}
	if result.LevelUp.OldLevel != 1 || result.LevelUp.NewLevel != 2 {
		t.Errorf("LevelUp = %+v, want 1 -> 2", result.LevelUp)
	}
	if result.Account.Level != 2 || result.Account.CurrentXP != 5 {
		t.Errorf("Account = %+v, want level 2 with 5 XP", result.Account)
	}

	// The next answer builds on the prediction and must not re-fire
	result, err = e.RecordAnswer(2, true)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if result.LevelUp != nil {
		t.Errorf("RecordAnswer() LevelUp = %+v, want nil", result.LevelUp)
	}
	if result.Account.Level != 2 || result.Account.CurrentXP != 15 {
		t.Errorf("Account = %+v, want level 2 with 15 XP", result.Account)
	}
}

func TestEngineAchievementFiresOnAnswer(t *testing.T) {
	clock := newTestClock()
	detector := NewDetector(testCatalog(), clock.now)
	e := newTestEngine(navCards(1, 2), testAccount(), detector, clock)

	result, err := e.RecordAnswer(1, true)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if result.Achievement == nil || result.Achievement.Code != "first_correct" {
		t.Errorf("RecordAnswer() achievement = %+v, want first_correct", result.Achievement)
	}

	// Nil detector disables evaluation entirely
	quiet := newTestEngine(navCards(1), testAccount(), nil, newTestClock())
	result, err = quiet.RecordAnswer(1, true)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if result.Achievement != nil {
		t.Errorf("RecordAnswer() achievement = %+v, want nil without a detector", result.Achievement)
	}
}

func TestEngineTimePerCardIsCapped(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2), testAccount(), nil, clock)

	clock.advance(400 * time.Second)
	if _, err := e.RecordAnswer(1, true); err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}

	payload := e.FinalizePayload(0)
	if payload.CardResults[0].TimeSpentSeconds != maxCardSeconds {
		t.Errorf("TimeSpentSeconds = %d, want capped at %d", payload.CardResults[0].TimeSpentSeconds, maxCardSeconds)
	}
	if payload.DurationSeconds != maxCardSeconds {
		t.Errorf("DurationSeconds = %d, want %d", payload.DurationSeconds, maxCardSeconds)
	}
}

func TestEngineFinalizePayload(t *testing.T) {
	clock := newTestClock()
	var ids []int64
	for i := int64(1); i <= 10; i++ {
		ids = append(ids, i)
	}
	e := newTestEngine(navCards(ids...), testAccount(), nil, clock)

	// Eight correct, one wrong, one never touched.
	for i := int64(1); i <= 8; i++ {
		if _, err := e.RecordAnswer(i, true); err != nil {
			t.Fatalf("RecordAnswer(%d) error = %v", i, err)
		}
	}
	if _, err := e.RecordAnswer(9, false); err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}

	payload := e.FinalizePayload(-120)
	if payload.Score != 80 {
		t.Errorf("Score = %d, want 80", payload.Score)
	}
	if payload.CorrectCount != 8 || payload.IncorrectCount != 1 {
		t.Errorf("counts = %d correct %d incorrect, want 8 and 1", payload.CorrectCount, payload.IncorrectCount)
	}
	// The unvisited card is folded into the skipped count
	if payload.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", payload.SkippedCount)
	}
	if payload.SessionXP != 90 {
		t.Errorf("SessionXP = %d, want 90 (one streak bonus at the fifth)", payload.SessionXP)
	}
	if payload.TimezoneOffsetMinutes != -120 {
		t.Errorf("TimezoneOffsetMinutes = %d, want -120", payload.TimezoneOffsetMinutes)
	}
	if len(payload.CardResults) != 10 {
		t.Fatalf("CardResults length = %d, want 10", len(payload.CardResults))
	}
	var last models.CardResult
	for _, r := range payload.CardResults {
		if r.CardID == 10 {
			last = r
		}
	}
	if last.Outcome != models.OutcomeSkipped {
		t.Errorf("unvisited card outcome = %v, want skipped", last.Outcome)
	}
}

func TestEngineTerminalRejectsActions(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2), testAccount(), nil, clock)
	e.MarkAbandoned()

	if _, err := e.RecordAnswer(1, true); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("RecordAnswer() error = %v, want ErrSessionTerminal", err)
	}
	if _, err := e.RevealHint(1); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("RevealHint() error = %v, want ErrSessionTerminal", err)
	}
	if _, err := e.Advance(); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("Advance() error = %v, want ErrSessionTerminal", err)
	}
	if err := e.Shuffle(); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("Shuffle() error = %v, want ErrSessionTerminal", err)
	}
	if e.Status() != models.SessionAbandoned {
		t.Errorf("Status() = %v, want abandoned", e.Status())
	}
}

func TestEngineRemoveCard(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2), testAccount(), nil, clock)

	if err := e.RemoveCard(99); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("RemoveCard() error = %v, want ErrCardNotFound", err)
	}
	if err := e.RemoveCard(1); err != nil {
		t.Errorf("RemoveCard() error = %v, want nil with a card left", err)
	}
	if err := e.RemoveCard(2); !errors.Is(err, ErrNoCards) {
		t.Errorf("RemoveCard() error = %v, want ErrNoCards when emptied", err)
	}
}

func TestEngineDirtyTracking(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2), testAccount(), nil, clock)

	if e.Dirty() {
		t.Error("Dirty() = true on a freshly loaded engine")
	}

	e.RecordAnswer(1, true)
	if !e.Dirty() {
		t.Fatal("Dirty() = false after a mutation")
	}

	snap := e.Snapshot()
	e.markSaved(snap)
	if e.Dirty() {
		t.Error("Dirty() = true after saving the latest snapshot")
	}

	// A mutation landing after the snapshot keeps the engine dirty
	snap = e.Snapshot()
	e.RecordAnswer(2, true)
	e.markSaved(snap)
	if !e.Dirty() {
		t.Error("Dirty() = false after saving a stale snapshot")
	}
}

func TestEngineRejectedRescoreStillTracksTime(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2), testAccount(), nil, clock)

	e.RecordAnswer(1, true)
	e.markSaved(e.Snapshot())
	if e.Dirty() {
		t.Fatal("Dirty() = true after saving")
	}

	// The rescore is rejected, but the time spent looking at the card
	// was attributed and must make it into the next autosave.
	clock.advance(30 * time.Second)
	result, err := e.RecordAnswer(1, false)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if result.Accepted {
		t.Fatal("RecordAnswer() accepted a rescore")
	}
	if !e.Dirty() {
		t.Error("Dirty() = false after time was attributed on a rejected rescore")
	}

	payload := e.FinalizePayload(0)
	if payload.CardResults[0].TimeSpentSeconds != 30 {
		t.Errorf("TimeSpentSeconds = %d, want 30", payload.CardResults[0].TimeSpentSeconds)
	}
}

func TestEngineResumeRestoresProgress(t *testing.T) {
	clock := newTestClock()
	session := testSession()
	session.CurrentIndex = 2
	session.Streak = 3
	session.SessionXP = 30
	session.ConfirmedXP = 30
	session.Answers = map[int64]models.Outcome{
		1: models.OutcomeCorrect,
		2: models.OutcomeCorrect,
		3: models.OutcomeCorrect,
	}

	e := NewEngine(session, navCards(1, 2, 3, 4), testAccount(), nil, DefaultScoringConfig(), clock.now)

	if e.Index() != 2 {
		t.Errorf("Index() = %d, want 2", e.Index())
	}
	agg := e.Aggregates()
	if agg.CorrectCount != 3 || agg.Streak != 3 || agg.SessionXP != 30 {
		t.Errorf("Aggregates() = %+v, want restored 3/3/30", agg)
	}

	// Already-confirmed XP must not be predicted again
	if snap := e.Account(); snap.Level != 1 || snap.CurrentXP != 0 {
		t.Errorf("Account() = %+v, want the confirmed snapshot with no pending XP", snap)
	}

	result, err := e.RecordAnswer(4, true)
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if result.Streak != 4 || result.SessionXP != 40 {
		t.Errorf("RecordAnswer() = %+v, want the streak continuing at 4", result)
	}
}

func TestEngineSessionView(t *testing.T) {
	clock := newTestClock()
	e := newTestEngine(navCards(1, 2, 3), testAccount(), nil, clock)

	e.RecordAnswer(1, true)
	e.Advance()

	view := e.SessionView()
	if view.CurrentIndex != 1 {
		t.Errorf("SessionView() CurrentIndex = %d, want 1", view.CurrentIndex)
	}
	if view.CorrectCount != 1 || view.SessionXP != 10 || view.Streak != 1 {
		t.Errorf("SessionView() = %+v, want live progress mirrored", view)
	}
	if len(view.CardIDs) != 3 {
		t.Errorf("SessionView() CardIDs = %v, want all three", view.CardIDs)
	}
}
