package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bank-cards/internal/config"
	"github.com/avolkov/bank-cards/internal/handler"
	"github.com/avolkov/bank-cards/internal/middleware"
	"github.com/avolkov/bank-cards/internal/repository"
	"github.com/avolkov/bank-cards/internal/service"
	"github.com/avolkov/bank-cards/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	var notifier service.Notifier
	if cfg.SenderEmail != "" {
		notifier = email.NewSender(cfg, logger)
	}
	cardSvc := service.NewCardService(repo, repo, notifier, logger, cfg.EncryptionKey)
	authSvc := service.NewAuthService(repo, logger, cfg.JWTSecret)
	h := handler.NewHandler(cardSvc, authSvc, logger)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	// Public routes
	api.HandleFunc("/auth/register", h.Register).Methods("POST")
	api.HandleFunc("/auth/login", h.Login).Methods("POST")
	// User card routes
	cards := api.PathPrefix("/cards").Subrouter()
	cards.Use(middleware.AuthMiddleware(cfg))
	cards.HandleFunc("/my", h.MyCards).Methods("GET")
	cards.HandleFunc("/my/active", h.MyActiveCards).Methods("GET")
	cards.HandleFunc("/transfer", h.Transfer).Methods("POST")
	cards.HandleFunc("/{cardId:[0-9]+}", h.GetCard).Methods("GET")
	cards.HandleFunc("/{cardId:[0-9]+}/block", h.BlockCard).Methods("PUT")
	cards.HandleFunc("", h.CreateCard).Methods("POST")
	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RequireAdmin)
	admin.HandleFunc("/cards", h.AllCards).Methods("GET")
	admin.HandleFunc("/cards/update-status", h.UpdateCardStatuses).Methods("POST")
	admin.HandleFunc("/cards/{cardId:[0-9]+}/activate", h.ActivateCard).Methods("PUT")
	admin.HandleFunc("/cards/{cardId:[0-9]+}", h.DeleteCard).Methods("DELETE")
	admin.HandleFunc("/cards/{username}", h.CreateCardForUser).Methods("POST")

	// Schedule nightly expiry sweep
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("0 3 * * *", func() {
		if err := cardSvc.SweepExpired(context.Background()); err != nil {
			logger.Errorf("Expiry sweep failed: %v", err)
		}
	}); err != nil {
		logger.Fatalf("Failed to schedule expiry sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
