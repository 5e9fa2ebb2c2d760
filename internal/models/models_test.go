package models

import (
	"testing"
)

func TestSessionIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status SessionStatus
		want   bool
	}{
		{
			name:   "active session",
			status: SessionActive,
			want:   false,
		},
		{
			name:   "completed session",
			status: SessionCompleted,
			want:   true,
		},
		{
			name:   "abandoned session",
			status: SessionAbandoned,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := StudySession{ID: 1, UserID: 1, Status: tt.status}
			if result := session.IsTerminal(); result != tt.want {
				t.Errorf("StudySession.IsTerminal() = %v, want %v", result, tt.want)
			}
		})
	}
}

func TestSessionAccuracy(t *testing.T) {
	tests := []struct {
		name      string
		correct   int
		incorrect int
		want      float64
	}{
		{
			name: "no answers",
			want: 0,
		},
		{
			name:    "all correct",
			correct: 5,
			want:    1,
		},
		{
			name:      "mixed",
			correct:   3,
			incorrect: 1,
			want:      0.75,
		},
		{
			name:      "all incorrect",
			incorrect: 4,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := StudySession{CorrectCount: tt.correct, IncorrectCount: tt.incorrect}
			if result := session.Accuracy(); result != tt.want {
				t.Errorf("StudySession.Accuracy() = %v, want %v", result, tt.want)
			}
		})
	}
}

func TestCardHasHint(t *testing.T) {
	withHint := Card{ID: 1, Front: "chat", Back: "cat", Hint: "a common pet"}
	if !withHint.HasHint() {
		t.Error("Card.HasHint() = false for card with hint text")
	}

	withoutHint := Card{ID: 2, Front: "chien", Back: "dog"}
	if withoutHint.HasHint() {
		t.Error("Card.HasHint() = true for card without hint text")
	}
}

func TestUserIsAdmin(t *testing.T) {
	tests := []struct {
		name string
		role string
		want bool
	}{
		{
			name: "admin role",
			role: RoleAdmin,
			want: true,
		},
		{
			name: "learner role",
			role: RoleLearner,
			want: false,
		},
		{
			name: "empty role",
			role: "",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := User{ID: 1, Role: tt.role}
			if result := user.IsAdmin(); result != tt.want {
				t.Errorf("User.IsAdmin() = %v, want %v", result, tt.want)
			}
		})
	}
}
