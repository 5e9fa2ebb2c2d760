package handlers

import (
	"errors"
	"net/http"
	"time"

	"flashquest/internal/models"
	"flashquest/internal/service"
	"flashquest/internal/validation"
)

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID                 int64  `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Role               string `json:"role"`
	Level              int    `json:"level"`
	CurrentXP          int    `json:"currentXp"`
	NextLevelThreshold int    `json:"nextLevelThreshold"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:                 user.ID,
		Email:              user.Email,
		Name:               user.Name,
		Role:               user.Role,
		Level:              user.Level,
		CurrentXP:          user.CurrentXP,
		NextLevelThreshold: user.NextLevelThreshold,
	}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	user, token, err := h.authService.Register(req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			respondWithError(w, http.StatusConflict, "Email already registered", "", nil)
		case errors.Is(err, validation.ErrInvalidEmail),
			errors.Is(err, validation.ErrPasswordTooShort),
			errors.Is(err, validation.ErrNameTooShort),
			errors.Is(err, validation.ErrNameTooLong):
			respondWithError(w, http.StatusBadRequest, err.Error(), "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to register", "Error registering user", err)
		}
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserResponse(user)})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	user, token, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "Invalid email or password", "", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to log in", "Error logging in", err)
		return
	}

	respondJSON(w, http.StatusOK, authResponse{Token: token, User: toUserResponse(user)})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetUser(UserIDFromContext(r.Context()))
	if err != nil || user == nil {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "Error loading current user", err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// Stats handles GET /api/auth/me/stats
func (h *AuthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.authService.GetUserStats(UserIDFromContext(r.Context()))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load stats", "Error fetching user stats", err)
		return
	}

	resp := map[string]interface{}{
		"totalSessions": stats.TotalSessions,
		"totalCorrect":  stats.TotalCorrect,
		"totalAnswered": stats.TotalAnswered,
		"totalXpEarned": stats.TotalXPEarned,
		"averageScore":  stats.AverageScore,
		"level":         stats.CurrentLevel,
		"currentXp":     stats.CurrentXP,
		"nextThreshold": stats.NextThreshold,
	}
	if stats.LastStudiedAt != nil {
		resp["lastStudiedAt"] = stats.LastStudiedAt.Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}
