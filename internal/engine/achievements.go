package engine

import (
	"time"

	"flashquest/internal/models"
)

// Aggregates is the session summary the detector evaluates against
type Aggregates struct {
	CorrectCount    int
	IncorrectCount  int
	SkippedCount    int
	TotalCards      int
	Streak          int
	SessionXP       int
	DurationSeconds int
	Answers         map[int64]models.Outcome
	CorrectInWindow int // correct answers inside the sliding window
}

// speedWindow is the sliding window for rate-based achievements
const speedWindow = 30 * time.Second

// predicates maps achievement codes to their trigger conditions.
// Evaluation is positive-reinforcement only: the detector is invoked
// after correct answers, never after incorrect or skip.
var predicates = map[string]func(Aggregates) bool{
	"first_correct": func(a Aggregates) bool {
		return a.CorrectCount >= 1
	},
	"hot_streak": func(a Aggregates) bool {
		return a.Streak >= 10
	},
	"perfect_run": func(a Aggregates) bool {
		return a.TotalCards >= 5 && a.CorrectCount == a.TotalCards
	},
	"quick_thinker": func(a Aggregates) bool {
		return a.CorrectInWindow >= 5
	},
	"xp_hunter": func(a Aggregates) bool {
		return a.SessionXP >= 200
	},
	"marathon": func(a Aggregates) bool {
		return a.DurationSeconds >= 600 && a.CorrectCount >= 1
	},
}

// Detector evaluates achievement triggers against session aggregates.
// Each trigger is one-shot per session, and once any achievement has
// fired the detector goes quiet for the rest of the run: a single
// celebration per session, first-fired-wins.
type Detector struct {
	catalog []models.AchievementStatus
	shown   map[string]bool
	fired   bool
	window  []time.Time
	now     func() time.Time
}

// NewDetector creates a detector from the per-user achievement catalog.
// Achievements already unlocked on the server never re-fire.
func NewDetector(catalog []models.AchievementStatus, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	d := &Detector{
		catalog: catalog,
		shown:   make(map[string]bool),
		now:     now,
	}
	for _, status := range catalog {
		if status.Unlocked {
			d.shown[status.Code] = true
		}
	}
	return d
}

// NoteCorrect records a correct-answer timestamp for the sliding window
func (d *Detector) NoteCorrect(at time.Time) {
	d.window = append(d.window, at)
	d.prune(at)
}

// prune drops window entries older than the speed window
func (d *Detector) prune(at time.Time) {
	cutoff := at.Add(-speedWindow)
	i := 0
	for i < len(d.window) && d.window[i].Before(cutoff) {
		i++
	}
	d.window = d.window[i:]
}

// WindowCount returns the number of corrects inside the sliding window
func (d *Detector) WindowCount() int {
	d.prune(d.now())
	return len(d.window)
}

// Evaluate returns at most one newly-triggered achievement, or nil.
// It is stateless over the aggregates; the only state kept is which
// triggers have already been shown.
func (d *Detector) Evaluate(agg Aggregates) *models.Achievement {
	if d.fired {
		return nil
	}
	agg.CorrectInWindow = d.WindowCount()
	for _, status := range d.catalog {
		if d.shown[status.Code] {
			continue
		}
		check, ok := predicates[status.Code]
		if !ok || !check(agg) {
			continue
		}
		d.shown[status.Code] = true
		d.fired = true
		unlocked := status.Achievement
		return &unlocked
	}
	return nil
}
