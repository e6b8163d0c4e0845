package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/huynhthien07/lingo/internal/api/http"
	auth "github.com/huynhthien07/lingo/internal/auth/middleware"
	"github.com/huynhthien07/lingo/internal/config"
	"github.com/huynhthien07/lingo/internal/db"
	"github.com/huynhthien07/lingo/internal/exam"
	"github.com/huynhthien07/lingo/internal/rbac"
	"github.com/huynhthien07/lingo/internal/storage"
	syncx "github.com/huynhthien07/lingo/internal/sync"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := exam.NewSQLStore(dbh)
	events := syncx.NewEventRepo(dbh)

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh, cfg.AdminUser, cfg.AdminPassHash))

	// Protected API (JWT → role from DB → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeDev))

		// Teacher: content management boundary
		pr.With(rbac.Require("test:create")).
			Post("/tests", api.UploadTestHandler(store))

		// Test definitions
		pr.With(rbac.Require("test:view")).
			Get("/tests", api.ListTestsHandler(store))
		pr.With(rbac.Require("test:view")).
			Get("/tests/{testID}", api.GetTestHandler(store))

		// Student attempt flow
		pr.With(rbac.Require("attempt:start")).
			Post("/tests/{testID}/start", api.StartAttemptHandler(store, events))
		pr.With(rbac.Require("attempt:save")).
			Post("/attempts/{attemptID}/answer", api.SaveAnswerHandler(store))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/complete", api.CompleteAttemptHandler(store, events))
		pr.With(rbac.Require("attempt:abandon")).
			Post("/attempts/{attemptID}/abandon", api.AbandonAttemptHandler(store, events))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))

		// Teacher grading workflow (writing/speaking)
		pr.With(rbac.Require("attempt:grade")).
			Get("/attempts/{attemptID}/grading", api.GetAttemptGradingHandler(store))
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/grading", api.ApplyAttemptGradingHandler(store, events))

		// Speaking recordings
		pr.With(rbac.RequireAny("recording:upload", "recording:view")).
			Route("/recordings", func(rr chi.Router) {
				api.MountRecordings(rr, bs)
			})

		// Accounts
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
