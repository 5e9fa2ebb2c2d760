package engine

import (
	"errors"
	"sync"
	"time"

	"flashquest/internal/models"
)

var (
	// ErrSessionTerminal is returned when an action targets a session
	// that has already completed or been abandoned.
	ErrSessionTerminal = errors.New("session already terminal")
	// ErrCardNotFound is returned when a card id is not in the session.
	ErrCardNotFound = errors.New("card not found in session")
	// ErrNoCards is returned when card removal leaves the session empty.
	ErrNoCards = errors.New("no cards remaining in session")
)

// maxCardSeconds caps the time attributed to a single card so idle
// time does not inflate session duration.
const maxCardSeconds = 300

// Engine owns the in-memory state of one active study run. All actions
// are serialized through a mutex: no two mutations for the same session
// ever interleave.
type Engine struct {
	mu sync.Mutex

	session    *models.StudySession
	nav        *Navigator
	ledger     *Ledger
	scoring    ScoringConfig
	reconciler *Reconciler
	detector   *Detector // nil when the achievement catalog was unavailable

	streak    int
	sessionXP int

	hintUsed    map[int64]bool
	cardTime    map[int64]int // seconds attributed per card, capped
	cardShownAt time.Time

	dirty bool
	rev   int64

	now func() time.Time
}

// NewEngine builds an engine for a loaded session. The session's saved
// progress (answers, streak, XP, index) is restored so a resumed run
// continues where it left off. A nil detector disables achievement
// evaluation for the run.
func NewEngine(session *models.StudySession, cards []models.Card, account AccountSnapshot, detector *Detector, cfg ScoringConfig, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	nav := NewNavigator(cards)
	nav.SetIndex(session.CurrentIndex)

	ledger := NewLedger()
	if session.Answers != nil {
		ledger.Restore(session.Answers)
	}

	reconciler := NewReconciler(account)
	reconciler.Confirm(account, session.ConfirmedXP)

	return &Engine{
		session:     session,
		nav:         nav,
		ledger:      ledger,
		scoring:     cfg,
		reconciler:  reconciler,
		detector:    detector,
		streak:      session.Streak,
		sessionXP:   session.SessionXP,
		hintUsed:    make(map[int64]bool),
		cardTime:    make(map[int64]int),
		cardShownAt: now(),
		now:         now,
	}
}

// SessionID returns the identifier of the session this engine owns
func (e *Engine) SessionID() int64 {
	return e.session.ID
}

// UserID returns the owning user
func (e *Engine) UserID() int64 {
	return e.session.UserID
}

// AnswerResult describes everything that happened when an answer was
// recorded: the score delta, streak movement, any predicted level-up
// and any newly triggered achievement.
type AnswerResult struct {
	Accepted    bool
	Outcome     models.Outcome
	XPDelta     int
	Streak      int
	SessionXP   int
	Account     AccountSnapshot
	LevelUp     *LevelUp
	Achievement *models.Achievement
}

// RecordAnswer records the outcome for a card. A card that already has
// a correct or incorrect entry is never rescored: the attempt is
// accepted as a no-op with Accepted=false rather than an error, so the
// score cannot be farmed by re-answering.
func (e *Engine) RecordAnswer(cardID int64, correct bool) (AnswerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.IsTerminal() {
		return AnswerResult{}, ErrSessionTerminal
	}
	if !e.hasCard(cardID) {
		return AnswerResult{}, ErrCardNotFound
	}

	e.attributeTime(cardID)

	if !e.ledger.Record(cardID, correct) {
		// The time attributed above must still reach the next autosave
		e.touch()
		outcome, _ := e.ledger.Outcome(cardID)
		return AnswerResult{
			Accepted:  false,
			Outcome:   outcome,
			Streak:    e.streak,
			SessionXP: e.sessionXP,
			Account:   e.reconciler.Effective(e.sessionXP),
		}, nil
	}

	score := ScoreAnswer(e.scoring, correct, e.streak)
	e.streak = score.Streak
	e.sessionXP += score.XPDelta
	e.touch()

	result := AnswerResult{
		Accepted:  true,
		XPDelta:   score.XPDelta,
		Streak:    e.streak,
		SessionXP: e.sessionXP,
	}
	if correct {
		result.Outcome = models.OutcomeCorrect
	} else {
		result.Outcome = models.OutcomeIncorrect
	}

	// The local account shadow advances synchronously, before any
	// further answer can be processed, so rapid consecutive answers
	// cannot re-trigger the same crossing.
	result.LevelUp = e.reconciler.Evaluate(e.sessionXP)
	result.Account = e.reconciler.Effective(e.sessionXP)

	if correct && e.detector != nil {
		e.detector.NoteCorrect(e.now())
		result.Achievement = e.detector.Evaluate(e.aggregatesLocked())
	}

	return result, nil
}

// RevealHint applies the hint XP penalty for a card. The penalty is
// charged once per card for the run; repeat reveals are a no-op.
func (e *Engine) RevealHint(cardID int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.IsTerminal() {
		return false, ErrSessionTerminal
	}
	if !e.hasCard(cardID) {
		return false, ErrCardNotFound
	}
	if e.hintUsed[cardID] {
		return false, nil
	}
	e.hintUsed[cardID] = true
	e.sessionXP -= e.scoring.HintPenalty
	e.touch()
	return true, nil
}

// HintUsed reports whether the hint was already revealed for a card
func (e *Engine) HintUsed(cardID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hintUsed[cardID]
}

// Advance moves to the next card, clamped at the last one
func (e *Engine) Advance() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsTerminal() {
		return e.nav.Index(), ErrSessionTerminal
	}
	if current, ok := e.nav.Current(); ok {
		e.attributeTime(current.ID)
	}
	if e.nav.Advance() {
		e.touch()
	}
	return e.nav.Index(), nil
}

// Rewind moves to the previous card, clamped at the first one. Going
// back never erases a recorded outcome: undo means "look again", not
// "rescore".
func (e *Engine) Rewind() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsTerminal() {
		return e.nav.Index(), ErrSessionTerminal
	}
	if current, ok := e.nav.Current(); ok {
		e.attributeTime(current.ID)
	}
	if e.nav.Rewind() {
		e.touch()
	}
	return e.nav.Index(), nil
}

// Skip records a skipped outcome for a card when none exists yet.
// Navigation is the caller's concern; Skip does not advance.
func (e *Engine) Skip(cardID int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsTerminal() {
		return false, ErrSessionTerminal
	}
	if !e.hasCard(cardID) {
		return false, ErrCardNotFound
	}
	if !e.ledger.Skip(cardID) {
		return false, nil
	}
	e.touch()
	return true, nil
}

// Shuffle re-permutes the cards without a final outcome and resets the
// position to the first card. Recorded outcomes, streak and session XP
// are preserved: shuffling changes the road, not the score.
func (e *Engine) Shuffle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsTerminal() {
		return ErrSessionTerminal
	}
	if current, ok := e.nav.Current(); ok {
		e.attributeTime(current.ID)
	}
	e.nav.Shuffle(e.ledger.Answered)
	e.touch()
	return nil
}

// Restart resets the position to the first card, preserving order,
// ledger, streak and XP.
func (e *Engine) Restart() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsTerminal() {
		return ErrSessionTerminal
	}
	if current, ok := e.nav.Current(); ok {
		e.attributeTime(current.ID)
	}
	e.nav.Restart()
	e.touch()
	return nil
}

// RemoveCard drops a deleted card from the run and re-clamps the
// position. Returns ErrNoCards when nothing remains: the session
// cannot continue and the caller must exit it.
func (e *Engine) RemoveCard(cardID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.nav.Remove(cardID) {
		return ErrCardNotFound
	}
	e.ledger.Remove(cardID)
	delete(e.cardTime, cardID)
	delete(e.hintUsed, cardID)
	e.touch()
	if e.nav.Len() == 0 {
		return ErrNoCards
	}
	return nil
}

// CurrentCard returns the card at the current position
func (e *Engine) CurrentCard() (models.Card, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nav.Current()
}

// Index returns the current position
func (e *Engine) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nav.Index()
}

// IsLastCard reports whether the run is on its final card
func (e *Engine) IsLastCard() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nav.IsLastCard()
}

// Cards returns the presentation order
func (e *Engine) Cards() []models.Card {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Card, len(e.nav.Cards()))
	copy(out, e.nav.Cards())
	return out
}

// Aggregates returns the derived session totals
func (e *Engine) Aggregates() Aggregates {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aggregatesLocked()
}

func (e *Engine) aggregatesLocked() Aggregates {
	correct, incorrect, skipped := e.ledger.Counts()
	return Aggregates{
		CorrectCount:    correct,
		IncorrectCount:  incorrect,
		SkippedCount:    skipped,
		TotalCards:      e.nav.Len(),
		Streak:          e.streak,
		SessionXP:       e.sessionXP,
		DurationSeconds: e.activeSecondsLocked(),
		Answers:         e.ledger.Snapshot(),
	}
}

// Account returns the effective account view including unconfirmed XP
func (e *Engine) Account() AccountSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconciler.Effective(e.sessionXP)
}

// ConfirmAccount applies a server confirmation of account state along
// with the session XP value the server has folded in.
func (e *Engine) ConfirmAccount(snapshot AccountSnapshot, confirmedSessionXP int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconciler.Confirm(snapshot, confirmedSessionXP)
}

// attributeTime charges elapsed wall time to a card, capped so idle
// time cannot inflate totals, and restarts the per-card clock.
func (e *Engine) attributeTime(cardID int64) {
	now := e.now()
	elapsed := int(now.Sub(e.cardShownAt).Seconds())
	if elapsed > 0 {
		total := e.cardTime[cardID] + elapsed
		if total > maxCardSeconds {
			total = maxCardSeconds
		}
		e.cardTime[cardID] = total
	}
	e.cardShownAt = now
}

// activeSecondsLocked returns baseline plus this run's attributed time
func (e *Engine) activeSecondsLocked() int {
	total := e.session.DurationBaseline
	for _, seconds := range e.cardTime {
		total += seconds
	}
	elapsed := int(e.now().Sub(e.cardShownAt).Seconds())
	if elapsed > maxCardSeconds {
		elapsed = maxCardSeconds
	}
	if elapsed > 0 {
		total += elapsed
	}
	return total
}

// touch marks the engine dirty and bumps the revision counter
func (e *Engine) touch() {
	e.dirty = true
	e.rev++
	e.session.LastActivityAt = e.now()
}

// Dirty reports whether state changed since the last successful save
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// ProgressSnapshot is the autosave payload
type ProgressSnapshot struct {
	CurrentIndex    int
	Answers         map[int64]models.Outcome
	Streak          int
	SessionXP       int
	DurationSeconds int
	CardOrder       []int64
	rev             int64
}

// Snapshot captures the current progress for an autosave push
func (e *Engine) Snapshot() ProgressSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ProgressSnapshot{
		CurrentIndex:    e.nav.Index(),
		Answers:         e.ledger.Snapshot(),
		Streak:          e.streak,
		SessionXP:       e.sessionXP,
		DurationSeconds: e.activeSecondsLocked(),
		CardOrder:       e.nav.CardIDs(),
		rev:             e.rev,
	}
}

// markSaved clears the dirty flag, but only when no mutation landed
// after the snapshot was taken.
func (e *Engine) markSaved(snap ProgressSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rev == snap.rev {
		e.dirty = false
	}
}

// FinalizePayload computes the terminal aggregates for completion.
// Cards never visited are folded into the skipped count; the score is
// the rounded percentage of correct answers over all cards.
func (e *Engine) FinalizePayload(timezoneOffsetMinutes int) FinalizeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	correct, incorrect, skipped := e.ledger.Counts()
	total := e.nav.Len()
	unanswered := total - correct - incorrect - skipped
	if unanswered > 0 {
		skipped += unanswered
	}

	score := 0
	if total > 0 {
		score = int(float64(correct)/float64(total)*100 + 0.5)
	}

	results := make([]models.CardResult, 0, total)
	for _, card := range e.nav.Cards() {
		outcome, ok := e.ledger.Outcome(card.ID)
		if !ok {
			outcome = models.OutcomeSkipped
		}
		results = append(results, models.CardResult{
			CardID:           card.ID,
			Outcome:          outcome,
			TimeSpentSeconds: e.cardTime[card.ID],
		})
	}

	return FinalizeRequest{
		Score:                 score,
		CorrectCount:          correct,
		IncorrectCount:        incorrect,
		SkippedCount:          skipped,
		DurationSeconds:       e.activeSecondsLocked(),
		SessionXP:             e.sessionXP,
		CardResults:           results,
		TimezoneOffsetMinutes: timezoneOffsetMinutes,
	}
}

// MarkCompleted transitions the local session mirror to completed
func (e *Engine) MarkCompleted(req FinalizeRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsTerminal() {
		return
	}
	now := e.now()
	e.session.Status = models.SessionCompleted
	e.session.CompletedAt = &now
	e.session.Score = req.Score
	e.session.CorrectCount = req.CorrectCount
	e.session.IncorrectCount = req.IncorrectCount
	e.session.SkippedCount = req.SkippedCount
	e.dirty = false
}

// MarkAbandoned transitions the local session mirror to abandoned
func (e *Engine) MarkAbandoned() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsTerminal() {
		return
	}
	e.session.Status = models.SessionAbandoned
	e.dirty = false
}

// Status returns the local session status
func (e *Engine) Status() models.SessionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Status
}

// CardByID returns a card in the run by its identifier
func (e *Engine) CardByID(cardID int64) (models.Card, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, card := range e.nav.Cards() {
		if card.ID == cardID {
			return card, true
		}
	}
	return models.Card{}, false
}

// SessionView returns a copy of the session mirror with live progress
func (e *Engine) SessionView() models.StudySession {
	e.mu.Lock()
	defer e.mu.Unlock()
	view := *e.session
	view.CurrentIndex = e.nav.Index()
	view.CardIDs = e.nav.CardIDs()
	view.Answers = e.ledger.Snapshot()
	view.Streak = e.streak
	view.SessionXP = e.sessionXP
	correct, incorrect, skipped := e.ledger.Counts()
	view.CorrectCount = correct
	view.IncorrectCount = incorrect
	view.SkippedCount = skipped
	return view
}

func (e *Engine) hasCard(cardID int64) bool {
	for _, card := range e.nav.Cards() {
		if card.ID == cardID {
			return true
		}
	}
	return false
}
