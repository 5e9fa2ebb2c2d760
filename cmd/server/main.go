package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashquest/internal/config"
	"flashquest/internal/database"
	"flashquest/internal/handlers"
	"flashquest/internal/repository"
	"flashquest/internal/security"
	"flashquest/internal/service"
)

func main() {
	cfg := config.Load()

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migrations completed successfully")

	tokenSecret := cfg.TokenSecret
	if tokenSecret == "" {
		// Tokens will not survive a restart without a configured secret
		log.Println("Warning: TOKEN_SECRET not set, generating an ephemeral secret")
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("Failed to generate token secret: %v", err)
		}
		tokenSecret = hex.EncodeToString(buf)
	}
	tokens, err := security.NewTokenManager(tokenSecret, cfg.TokenDuration)
	if err != nil {
		log.Fatalf("Failed to create token manager: %v", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	deckRepo := repository.NewDeckRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	achievementRepo := repository.NewAchievementRepository(db)

	// Services
	authService := service.NewAuthService(userRepo, tokens)
	studyService := service.NewStudyService(sessionRepo, deckRepo, userRepo, achievementRepo, cfg.AutosaveInterval)
	deckService := service.NewDeckService(deckRepo, studyService)
	emailService, err := service.NewEmailService(cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL)
	if err != nil {
		log.Fatalf("Failed to create email service: %v", err)
	}

	// Handlers
	loginLimiter := security.NewRateLimiter(10, time.Minute)
	middleware := handlers.NewMiddleware(tokens, authService, loginLimiter)
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(studyService)
	deckHandler := handlers.NewDeckHandler(deckService)
	achievementHandler := handlers.NewAchievementHandler(studyService)

	mux := http.NewServeMux()

	// Auth routes
	mux.HandleFunc("POST /api/auth/register", middleware.RateLimit(authHandler.Register))
	mux.HandleFunc("POST /api/auth/login", middleware.RateLimit(authHandler.Login))
	mux.HandleFunc("GET /api/auth/me", middleware.RequireAuth(authHandler.Me))
	mux.HandleFunc("GET /api/auth/me/stats", middleware.RequireAuth(authHandler.Stats))

	// Deck routes
	mux.HandleFunc("GET /api/decks", middleware.RequireAuth(deckHandler.List))
	mux.HandleFunc("GET /api/decks/{deckId}", middleware.RequireAuth(deckHandler.Get))
	mux.HandleFunc("POST /api/decks", middleware.RequireAdmin(deckHandler.Create))
	mux.HandleFunc("POST /api/decks/{deckId}/cards", middleware.RequireAdmin(deckHandler.AddCard))
	mux.HandleFunc("DELETE /api/decks/{deckId}/cards/{cardId}", middleware.RequireAdmin(deckHandler.DeleteCard))

	// Study session routes
	mux.HandleFunc("GET /api/sessions", middleware.RequireAuth(sessionHandler.List))
	mux.HandleFunc("POST /api/sessions", middleware.RequireAuth(sessionHandler.Create))
	mux.HandleFunc("GET /api/sessions/{id}", middleware.RequireAuth(sessionHandler.Get))
	mux.HandleFunc("POST /api/sessions/{id}/load", middleware.RequireAuth(sessionHandler.Load))
	mux.HandleFunc("PATCH /api/sessions/{id}", middleware.RequireAuth(sessionHandler.Act))
	mux.HandleFunc("POST /api/sessions/{id}/complete", middleware.RequireAuth(sessionHandler.Complete))
	mux.HandleFunc("POST /api/sessions/{id}/abandon", middleware.RequireAuth(sessionHandler.Abandon))
	mux.HandleFunc("POST /api/sessions/unload", middleware.RequireAuth(sessionHandler.Unload))

	// Achievement routes
	mux.HandleFunc("GET /api/achievements", middleware.RequireAuth(achievementHandler.List))

	handler := middleware.Logging(mux)

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweepIdleSessions(ctx, studyService, cfg.SessionIdleTimeout)
	go sendProgressSummaries(ctx, emailService, authService, userRepo)

	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// sweepIdleSessions periodically abandons sessions with no activity
// past the idle timeout.
func sweepIdleSessions(ctx context.Context, studyService *service.StudyService, timeout time.Duration) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := studyService.SweepIdle(ctx, timeout)
			if err != nil {
				log.Printf("Idle session sweep failed: %v", err)
				continue
			}
			if swept > 0 {
				log.Printf("Abandoned %d idle sessions", swept)
			}
		}
	}
}

// sendProgressSummaries emails each learner a weekly progress summary
func sendProgressSummaries(ctx context.Context, emailService *service.EmailService, authService *service.AuthService, userRepo *repository.UserRepository) {
	if !emailService.IsEnabled() {
		return
	}

	ticker := time.NewTicker(7 * 24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			learners, err := userRepo.ListLearners()
			if err != nil {
				log.Printf("Failed to list learners for progress summaries: %v", err)
				continue
			}
			for i := range learners {
				stats, err := authService.GetUserStats(learners[i].ID)
				if err != nil {
					log.Printf("Failed to load stats for user %d: %v", learners[i].ID, err)
					continue
				}
				if stats.TotalSessions == 0 {
					continue
				}
				if err := emailService.SendProgressSummary(ctx, &learners[i], stats); err != nil {
					log.Printf("Failed to send progress summary to user %d: %v", learners[i].ID, err)
				}
			}
		}
	}
}
