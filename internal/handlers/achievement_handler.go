package handlers

import (
	"net/http"
	"time"

	"flashquest/internal/service"
)

// AchievementHandler handles achievement HTTP requests
type AchievementHandler struct {
	studyService *service.StudyService
}

// NewAchievementHandler creates a new achievement handler
func NewAchievementHandler(studyService *service.StudyService) *AchievementHandler {
	return &AchievementHandler{studyService: studyService}
}

// List handles GET /api/achievements: the catalog annotated with the
// caller's unlock state.
func (h *AchievementHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.studyService.AchievementCatalog(UserIDFromContext(r.Context()))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load achievements", "Error fetching achievements", err)
		return
	}

	type achievementResponse struct {
		Code        string `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Icon        string `json:"icon,omitempty"`
		Unlocked    bool   `json:"unlocked"`
		UnlockedAt  string `json:"unlockedAt,omitempty"`
	}
	out := make([]achievementResponse, len(statuses))
	for i, s := range statuses {
		out[i] = achievementResponse{
			Code:        s.Achievement.Code,
			Name:        s.Achievement.Name,
			Description: s.Achievement.Description,
			Icon:        s.Achievement.Icon,
			Unlocked:    s.Unlocked,
		}
		if s.UnlockedAt != nil {
			out[i].UnlockedAt = s.UnlockedAt.Format(time.RFC3339)
		}
	}
	respondJSON(w, http.StatusOK, out)
}
