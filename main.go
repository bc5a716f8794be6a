package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/ahorrito/src/config"
	"github.com/username/ahorrito/src/database"
	"github.com/username/ahorrito/src/handlers"
	"github.com/username/ahorrito/src/logger"
	"github.com/username/ahorrito/src/parsers"
	"github.com/username/ahorrito/src/processors"
	"github.com/username/ahorrito/src/scheduler"
	"github.com/username/ahorrito/src/security"
	"github.com/username/ahorrito/src/services"
	"golang.org/x/time/rate"
)

var limiter *rate.Limiter

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("server exited with error: %v", err)
	}
}

func run() error {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Ahorrito backend server starting...")

	limiter = rate.NewLimiter(rate.Every(config.Cfg.RateLimitInterval), config.Cfg.RateLimitBurst)

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing config cache...")
	configCache := cache.New(15*time.Minute, 30*time.Minute)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	notificationParser := parsers.NewNotificationParser()
	savingsCalculator := processors.NewSavingsCalculator()
	balancePolicyResolver := processors.NewBalancePolicyResolver()

	txService := services.NewTransactionService(
		notificationParser, savingsCalculator, balancePolicyResolver,
		configCache, config.Cfg.ReprocessMode,
	)

	userHandler := handlers.NewUserHandler(authService, txService)
	txHandler := handlers.NewTransactionHandler(txService)
	handlers.InitializeGoogleOAuthConfig()

	logger.L.Info("Starting pending sweep scheduler...")
	sweepScheduler := scheduler.New(txService, config.Cfg.PendingSweepSchedule)
	if err := sweepScheduler.Start(); err != nil {
		logger.L.Error("Failed to start pending sweep scheduler", "error", err)
		return err
	}
	defer sweepScheduler.Stop()

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/auth/register", userHandler.RegisterUserHandler)
	apiRouter.HandleFunc("POST /api/auth/login", userHandler.LoginUserHandler)
	apiRouter.HandleFunc("POST /api/auth/logout", userHandler.LogoutUserHandler)
	apiRouter.HandleFunc("GET /api/auth/google/login", userHandler.HandleGoogleLogin)
	apiRouter.HandleFunc("GET /api/auth/google/callback", userHandler.HandleGoogleCallback)

	apiRouter.HandleFunc("POST /api/transactions", txHandler.HandleCreateTransaction)
	apiRouter.HandleFunc("POST /api/transactions/from-notification", txHandler.HandleFromNotification)
	apiRouter.HandleFunc("POST /api/transactions/parse-notification", txHandler.HandleParseNotification)
	apiRouter.HandleFunc("POST /api/transactions/saving-deposit", txHandler.HandleSavingDeposit)
	apiRouter.HandleFunc("POST /api/transactions/withdraw", txHandler.HandleWithdraw)
	apiRouter.HandleFunc("POST /api/transactions/process-pending/{userId}", txHandler.HandleProcessPending)
	apiRouter.HandleFunc("GET /api/transactions/{userId}", txHandler.HandleListTransactions)
	apiRouter.HandleFunc("POST /api/transactions/{id}/cancel", txHandler.HandleCancelTransaction)

	apiRouter.HandleFunc("GET /api/users/{id}/savings-config", userHandler.AuthMiddleware(userHandler.GetSavingsConfigHandler))
	apiRouter.HandleFunc("PUT /api/users/{id}/savings-config", userHandler.AuthMiddleware(userHandler.UpdateSavingsConfigHandler))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Ahorrito backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		return err
	}
	logger.L.Info("Server stopped gracefully.")
	return nil
}
