package engine

// AccountSnapshot is a view of account-level progression: the level, XP
// accumulated within it, and the XP needed to reach the next level.
type AccountSnapshot struct {
	Level              int
	CurrentXP          int
	NextLevelThreshold int
}

// LevelUp is emitted exactly once per crossing. A single large XP gain
// spanning several thresholds produces one event with NewLevel more than
// one above OldLevel.
type LevelUp struct {
	OldLevel  int
	NewLevel  int
	CurrentXP int // XP remaining within the new level
	Threshold int // XP needed for the level after that
}

// Reconciler merges server-confirmed account state with unconfirmed
// session XP. The confirmed snapshot is only ever replaced by a server
// confirmation; local predictions live in a separate layer so the two
// can never double-count the same XP.
type Reconciler struct {
	confirmed          AccountSnapshot
	predicted          *AccountSnapshot
	confirmedSessionXP int
}

// NewReconciler creates a reconciler seeded with the account snapshot
// loaded at session start.
func NewReconciler(confirmed AccountSnapshot) *Reconciler {
	return &Reconciler{confirmed: confirmed}
}

// baseline returns the snapshot local math builds on: the last local
// prediction when one exists, otherwise the server-confirmed state.
func (r *Reconciler) baseline() AccountSnapshot {
	if r.predicted != nil {
		return *r.predicted
	}
	return r.confirmed
}

// Effective returns the account view including unconfirmed session XP
func (r *Reconciler) Effective(sessionXP int) AccountSnapshot {
	snap := r.baseline()
	pending := sessionXP - r.confirmedSessionXP
	if pending > 0 {
		snap.CurrentXP += pending
	}
	return snap
}

// Evaluate checks whether the session XP total crosses one or more level
// thresholds. On a crossing it records a local prediction, advances the
// confirmed-session-XP watermark so the same XP cannot trigger again,
// and returns a single LevelUp event. Otherwise it returns nil.
func (r *Reconciler) Evaluate(sessionXP int) *LevelUp {
	base := r.baseline()
	pending := sessionXP - r.confirmedSessionXP
	if pending < 0 {
		pending = 0
	}
	xp := base.CurrentXP + pending
	if xp < base.NextLevelThreshold || base.NextLevelThreshold <= 0 {
		return nil
	}

	level, threshold := base.Level, base.NextLevelThreshold
	for xp >= threshold {
		xp -= threshold
		level++
		threshold = NextThreshold(threshold)
	}

	r.predicted = &AccountSnapshot{
		Level:              level,
		CurrentXP:          xp,
		NextLevelThreshold: threshold,
	}
	r.confirmedSessionXP = sessionXP

	return &LevelUp{
		OldLevel:  base.Level,
		NewLevel:  level,
		CurrentXP: xp,
		Threshold: threshold,
	}
}

// Confirm applies a server confirmation: the snapshot becomes the new
// confirmed truth, any local prediction is dropped, and the watermark
// moves to the session XP value the server has folded in.
func (r *Reconciler) Confirm(snapshot AccountSnapshot, sessionXP int) {
	r.confirmed = snapshot
	r.predicted = nil
	r.confirmedSessionXP = sessionXP
}

// ConfirmedSessionXP returns the current watermark
func (r *Reconciler) ConfirmedSessionXP() int {
	return r.confirmedSessionXP
}

// NextThreshold grows a level threshold geometrically, floored
func NextThreshold(threshold int) int {
	next := threshold * 12 / 10
	if next <= threshold {
		next = threshold + 1
	}
	return next
}

// AdvanceLevels folds an XP gain into an account snapshot, looping over
// as many thresholds as the gain spans. Shared with the persistence side
// so server-side level math matches the local prediction exactly.
func AdvanceLevels(snap AccountSnapshot, gain int) (AccountSnapshot, bool) {
	if gain < 0 {
		gain = 0
	}
	snap.CurrentXP += gain
	leveled := false
	for snap.NextLevelThreshold > 0 && snap.CurrentXP >= snap.NextLevelThreshold {
		snap.CurrentXP -= snap.NextLevelThreshold
		snap.Level++
		snap.NextLevelThreshold = NextThreshold(snap.NextLevelThreshold)
		leveled = true
	}
	return snap, leveled
}
