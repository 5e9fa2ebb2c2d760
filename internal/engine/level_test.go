package engine

import "testing"

func TestNextThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		want      int
	}{
		{name: "standard growth", threshold: 100, want: 120},
		{name: "floors the result", threshold: 125, want: 150},
		{name: "small values always grow", threshold: 4, want: 5},
		{name: "one grows to two", threshold: 1, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextThreshold(tt.threshold); got != tt.want {
				t.Errorf("NextThreshold(%d) = %d, want %d", tt.threshold, got, tt.want)
			}
		})
	}
}

func TestReconcilerEvaluateNoCrossing(t *testing.T) {
	r := NewReconciler(AccountSnapshot{Level: 1, CurrentXP: 30, NextLevelThreshold: 100})

	if event := r.Evaluate(50); event != nil {
		t.Errorf("Evaluate() = %+v, want nil below the threshold", event)
	}

	snap := r.Effective(50)
	if snap.Level != 1 || snap.CurrentXP != 80 {
		t.Errorf("Effective() = %+v, want level 1 with 80 XP", snap)
	}
}

func TestReconcilerEvaluateSingleCrossing(t *testing.T) {
	r := NewReconciler(AccountSnapshot{Level: 1, CurrentXP: 90, NextLevelThreshold: 100})

	event := r.Evaluate(20)
	if event == nil {
		t.Fatal("Evaluate() = nil, want a level-up event")
	}
	if event.OldLevel != 1 || event.NewLevel != 2 {
		t.Errorf("Evaluate() levels = %d -> %d, want 1 -> 2", event.OldLevel, event.NewLevel)
	}
	if event.CurrentXP != 10 || event.Threshold != 120 {
		t.Errorf("Evaluate() = %d XP toward %d, want 10 toward 120", event.CurrentXP, event.Threshold)
	}
}

func TestReconcilerEvaluateMultiLevelJump(t *testing.T) {
	r := NewReconciler(AccountSnapshot{Level: 3, CurrentXP: 90, NextLevelThreshold: 100})

	// 90 + 250 = 340: crosses 100 into level 4 (240 left, threshold 120),
	// then 120 into level 5 (120 left, threshold 144). One event.
	event := r.Evaluate(250)
	if event == nil {
		t.Fatal("Evaluate() = nil, want a level-up event")
	}
	if event.OldLevel != 3 || event.NewLevel != 5 {
		t.Errorf("Evaluate() levels = %d -> %d, want 3 -> 5", event.OldLevel, event.NewLevel)
	}
	if event.CurrentXP != 120 || event.Threshold != 144 {
		t.Errorf("Evaluate() = %d XP toward %d, want 120 toward 144", event.CurrentXP, event.Threshold)
	}
}

func TestReconcilerWatermarkPreventsDoubleTrigger(t *testing.T) {
	r := NewReconciler(AccountSnapshot{Level: 1, CurrentXP: 95, NextLevelThreshold: 100})

	if event := r.Evaluate(10); event == nil {
		t.Fatal("Evaluate() should fire on the first crossing")
	}
	// Re-evaluating the same session XP must not fire again
	if event := r.Evaluate(10); event != nil {
		t.Errorf("Evaluate() = %+v, want nil for already-counted XP", event)
	}
	// Only XP beyond the watermark counts toward the next crossing
	if event := r.Evaluate(20); event != nil {
		t.Errorf("Evaluate() = %+v, want nil with 10 new XP toward 120", event)
	}

	snap := r.Effective(20)
	if snap.Level != 2 || snap.CurrentXP != 15 {
		t.Errorf("Effective() = %+v, want level 2 with 15 XP", snap)
	}
}

func TestReconcilerConfirmReplacesPrediction(t *testing.T) {
	r := NewReconciler(AccountSnapshot{Level: 1, CurrentXP: 95, NextLevelThreshold: 100})
	if event := r.Evaluate(10); event == nil {
		t.Fatal("Evaluate() should fire")
	}

	// Server confirms a slightly different truth; it wins outright.
	r.Confirm(AccountSnapshot{Level: 2, CurrentXP: 7, NextLevelThreshold: 120}, 10)

	snap := r.Effective(10)
	if snap.Level != 2 || snap.CurrentXP != 7 || snap.NextLevelThreshold != 120 {
		t.Errorf("Effective() = %+v, want the confirmed snapshot", snap)
	}
	if r.ConfirmedSessionXP() != 10 {
		t.Errorf("ConfirmedSessionXP() = %d, want 10", r.ConfirmedSessionXP())
	}
}

func TestAdvanceLevels(t *testing.T) {
	tests := []struct {
		name        string
		snap        AccountSnapshot
		gain        int
		want        AccountSnapshot
		wantLeveled bool
	}{
		{
			name:        "gain below threshold",
			snap:        AccountSnapshot{Level: 1, CurrentXP: 10, NextLevelThreshold: 100},
			gain:        50,
			want:        AccountSnapshot{Level: 1, CurrentXP: 60, NextLevelThreshold: 100},
			wantLeveled: false,
		},
		{
			name:        "gain crossing one threshold",
			snap:        AccountSnapshot{Level: 1, CurrentXP: 90, NextLevelThreshold: 100},
			gain:        20,
			want:        AccountSnapshot{Level: 2, CurrentXP: 10, NextLevelThreshold: 120},
			wantLeveled: true,
		},
		{
			name:        "gain crossing two thresholds",
			snap:        AccountSnapshot{Level: 3, CurrentXP: 90, NextLevelThreshold: 100},
			gain:        250,
			want:        AccountSnapshot{Level: 5, CurrentXP: 120, NextLevelThreshold: 144},
			wantLeveled: true,
		},
		{
			name:        "negative gain is ignored",
			snap:        AccountSnapshot{Level: 2, CurrentXP: 40, NextLevelThreshold: 120},
			gain:        -30,
			want:        AccountSnapshot{Level: 2, CurrentXP: 40, NextLevelThreshold: 120},
			wantLeveled: false,
		},
		{
			name:        "zero threshold never loops",
			snap:        AccountSnapshot{Level: 1, CurrentXP: 0, NextLevelThreshold: 0},
			gain:        500,
			want:        AccountSnapshot{Level: 1, CurrentXP: 500, NextLevelThreshold: 0},
			wantLeveled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, leveled := AdvanceLevels(tt.snap, tt.gain)
			if got != tt.want {
				t.Errorf("AdvanceLevels() = %+v, want %+v", got, tt.want)
			}
			if leveled != tt.wantLeveled {
				t.Errorf("AdvanceLevels() leveled = %v, want %v", leveled, tt.wantLeveled)
			}
		})
	}
}

func TestAdvanceLevelsMatchesEvaluate(t *testing.T) {
	start := AccountSnapshot{Level: 2, CurrentXP: 55, NextLevelThreshold: 120}
	r := NewReconciler(start)

	event := r.Evaluate(200)
	if event == nil {
		t.Fatal("Evaluate() = nil, want a level-up event")
	}

	snap, leveled := AdvanceLevels(start, 200)
	if !leveled {
		t.Fatal("AdvanceLevels() reported no crossing")
	}
	if snap.Level != event.NewLevel || snap.CurrentXP != event.CurrentXP || snap.NextLevelThreshold != event.Threshold {
		t.Errorf("AdvanceLevels() = %+v diverges from Evaluate() = %+v", snap, event)
	}
}
