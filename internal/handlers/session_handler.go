package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"flashquest/internal/engine"
	"flashquest/internal/models"
	"flashquest/internal/service"
)

// SessionHandler handles study session HTTP requests
type SessionHandler struct {
	studyService *service.StudyService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(studyService *service.StudyService) *SessionHandler {
	return &SessionHandler{studyService: studyService}
}

type accountResponse struct {
	Level              int `json:"level"`
	CurrentXP          int `json:"currentXp"`
	NextLevelThreshold int `json:"nextLevelThreshold"`
}

func toAccountResponse(snap engine.AccountSnapshot) accountResponse {
	return accountResponse{
		Level:              snap.Level,
		CurrentXP:          snap.CurrentXP,
		NextLevelThreshold: snap.NextLevelThreshold,
	}
}

type levelUpResponse struct {
	OldLevel  int `json:"oldLevel"`
	NewLevel  int `json:"newLevel"`
	CurrentXP int `json:"currentXp"`
	Threshold int `json:"threshold"`
}

type cardResponse struct {
	ID      int64    `json:"id"`
	Front   string   `json:"front"`
	Back    string   `json:"back"`
	Hint    string   `json:"hint,omitempty"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

func toCardResponses(cards []models.Card) []cardResponse {
	out := make([]cardResponse, len(cards))
	for i, card := range cards {
		out[i] = cardResponse{
			ID:      card.ID,
			Front:   card.Front,
			Back:    card.Back,
			Hint:    card.Hint,
			Type:    string(card.Type),
			Options: card.Options,
			Tags:    card.Tags,
		}
	}
	return out
}

type sessionResponse struct {
	ID             int64             `json:"id"`
	DeckID         int64             `json:"deckId"`
	Status         string            `json:"status"`
	CurrentIndex   int               `json:"currentIndex"`
	Streak         int               `json:"streak"`
	SessionXP      int               `json:"sessionXp"`
	Answers        map[string]string `json:"answers"`
	Score          int               `json:"score"`
	CorrectCount   int               `json:"correctCount"`
	IncorrectCount int               `json:"incorrectCount"`
	SkippedCount   int               `json:"skippedCount"`
	Cards          []cardResponse    `json:"cards,omitempty"`
}

func toSessionResponse(session *models.StudySession, cards []models.Card) sessionResponse {
	answers := make(map[string]string, len(session.Answers))
	for cardID, outcome := range session.Answers {
		answers[strconv.FormatInt(cardID, 10)] = string(outcome)
	}
	return sessionResponse{
		ID:             session.ID,
		DeckID:         session.DeckID,
		Status:         string(session.Status),
		CurrentIndex:   session.CurrentIndex,
		Streak:         session.Streak,
		SessionXP:      session.SessionXP,
		Answers:        answers,
		Score:          session.Score,
		CorrectCount:   session.CorrectCount,
		IncorrectCount: session.IncorrectCount,
		SkippedCount:   session.SkippedCount,
		Cards:          toCardResponses(cards),
	}
}

func sessionIDFromPath(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// List handles GET /api/sessions?status=active
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	if status := r.URL.Query().Get("status"); status != "" && status != string(models.SessionActive) {
		respondWithError(w, http.StatusBadRequest, "Only active sessions can be listed", "", nil)
		return
	}

	summaries, err := h.studyService.ListActiveSessions(userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list sessions", "Error listing sessions", err)
		return
	}

	type summaryResponse struct {
		ID           int64  `json:"id"`
		DeckID       int64  `json:"deckId"`
		DeckName     string `json:"deckName"`
		Status       string `json:"status"`
		TotalCards   int    `json:"totalCards"`
		CurrentIndex int    `json:"currentIndex"`
		StartedAt    string `json:"startedAt"`
	}
	out := make([]summaryResponse, len(summaries))
	for i, s := range summaries {
		out[i] = summaryResponse{
			ID:           s.ID,
			DeckID:       s.DeckID,
			DeckName:     s.DeckName,
			Status:       string(s.Status),
			TotalCards:   s.TotalCards,
			CurrentIndex: s.CurrentIndex,
			StartedAt:    s.StartedAt.Format(time.RFC3339),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// Create handles POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req struct {
		DeckID int64 `json:"deckId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	session, cards, err := h.studyService.StartSession(r.Context(), userID, req.DeckID)
	if err != nil {
		if errors.Is(err, service.ErrDeckEmpty) {
			respondWithError(w, http.StatusUnprocessableEntity, "Deck has no cards", "", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to start session", "Error starting session", err)
		return
	}

	respondJSON(w, http.StatusCreated, toSessionResponse(session, cards))
}

// Get handles GET /api/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session ID", "", nil)
		return
	}

	session, cards, err := h.studyService.GetSession(userID, sessionID)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(session, cards))
}

// Load handles POST /api/sessions/{id}/load: it makes the session the
// user's active run, tearing down any previous run first.
func (h *SessionHandler) Load(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session ID", "", nil)
		return
	}

	session, cards, err := h.studyService.LoadSession(r.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, engine.ErrNoCards) {
			respondWithError(w, http.StatusGone, "Session has no cards left", "", nil)
			return
		}
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(session, cards))
}

type actionRequest struct {
	Action          string `json:"action"` // answer | advance | rewind | skip | shuffle | restart | hint | flush
	CardID          int64  `json:"cardId,omitempty"`
	SelfGraded      bool   `json:"selfGraded,omitempty"`
	SelectedOptions []int  `json:"selectedOptions,omitempty"`
	Text            string `json:"text,omitempty"`
}

type actionResponse struct {
	Accepted        bool             `json:"accepted"`
	Outcome         string           `json:"outcome,omitempty"`
	XPDelta         int              `json:"xpDelta,omitempty"`
	Streak          int              `json:"streak"`
	SessionXP       int              `json:"sessionXp"`
	CurrentIndex    int              `json:"currentIndex"`
	Account         *accountResponse `json:"account,omitempty"`
	LevelUp         *levelUpResponse `json:"levelUp,omitempty"`
	AchievementCode string           `json:"achievementCode,omitempty"`
	HintApplied     bool             `json:"hintApplied,omitempty"`
	Cards           []cardResponse   `json:"cards,omitempty"`
}

// Act handles PATCH /api/sessions/{id}: runtime actions on the loaded run
func (h *SessionHandler) Act(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session ID", "", nil)
		return
	}

	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	switch req.Action {
	case "answer":
		result, err := h.studyService.RecordAnswer(r.Context(), userID, sessionID, req.CardID, engine.Submission{
			SelfGraded:      req.SelfGraded,
			SelectedOptions: req.SelectedOptions,
			Text:            req.Text,
		})
		if err != nil {
			respondSessionError(w, err)
			return
		}
		resp := actionResponse{
			Accepted:  result.Accepted,
			Outcome:   string(result.Outcome),
			XPDelta:   result.XPDelta,
			Streak:    result.Streak,
			SessionXP: result.SessionXP,
		}
		if result.Accepted {
			account := toAccountResponse(result.Account)
			resp.Account = &account
		}
		if result.LevelUp != nil {
			resp.LevelUp = &levelUpResponse{
				OldLevel:  result.LevelUp.OldLevel,
				NewLevel:  result.LevelUp.NewLevel,
				CurrentXP: result.LevelUp.CurrentXP,
				Threshold: result.LevelUp.Threshold,
			}
		}
		if result.Achievement != nil {
			resp.AchievementCode = result.Achievement.Code
		}
		respondJSON(w, http.StatusOK, resp)

	case "advance":
		index, err := h.studyService.Advance(userID, sessionID)
		if err != nil {
			respondSessionError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, actionResponse{Accepted: true, CurrentIndex: index})

	case "rewind":
		index, err := h.studyService.Rewind(userID, sessionID)
		if err != nil {
			respondSessionError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, actionResponse{Accepted: true, CurrentIndex: index})

	case "skip":
		marked, err := h.studyService.Skip(userID, sessionID, req.CardID)
		if err != nil {
			respondSessionError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, actionResponse{Accepted: marked})

	case "shuffle":
		cards, err := h.studyService.Shuffle(userID, sessionID)
		if err != nil {
			respondSessionError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, actionResponse{Accepted: true, Cards: toCardResponses(cards)})

	case "restart":
		if err := h.studyService.Restart(userID, sessionID); err != nil {
			respondSessionError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, actionResponse{Accepted: true})

	case "hint":
		applied, sessionXP, err := h.studyService.RevealHint(r.Context(), userID, sessionID, req.CardID)
		if err != nil {
			respondSessionError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, actionResponse{Accepted: true, HintApplied: applied, SessionXP: sessionXP})

	default:
		respondWithError(w, http.StatusBadRequest, "Unknown action", "", nil)
	}
}

// Complete handles POST /api/sessions/{id}/complete
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session ID", "", nil)
		return
	}

	var req struct {
		TimezoneOffsetMinutes int `json:"timezoneOffsetMinutes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	resp, err := h.studyService.Complete(r.Context(), userID, sessionID, req.TimezoneOffsetMinutes)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"leveledUp": resp.LeveledUp,
		"newLevel":  resp.NewLevel,
		"xpEarned":  resp.XPEarned,
		"account":   toAccountResponse(resp.Account),
	})
}

// Abandon handles POST /api/sessions/{id}/abandon
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	sessionID, err := sessionIDFromPath(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session ID", "", nil)
		return
	}

	if err := h.studyService.Abandon(r.Context(), userID, sessionID); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(models.SessionAbandoned)})
}

// Unload handles POST /api/sessions/unload: the client is navigating
// away, flush and drop the active run.
func (h *SessionHandler) Unload(w http.ResponseWriter, r *http.Request) {
	h.studyService.UnloadSession(r.Context(), UserIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		respondWithError(w, http.StatusNotFound, "Session not found", "", nil)
	case errors.Is(err, service.ErrNotSessionOwner):
		respondWithError(w, http.StatusForbidden, ErrForbidden, "", nil)
	case errors.Is(err, service.ErrSessionInactive), errors.Is(err, engine.ErrSessionTerminal):
		respondWithError(w, http.StatusConflict, "Session is no longer active", "", nil)
	case errors.Is(err, engine.ErrCardNotFound):
		respondWithError(w, http.StatusNotFound, "Card not found in session", "", nil)
	default:
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Session operation failed", err)
	}
}
