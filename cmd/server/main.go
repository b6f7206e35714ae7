package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledger-sync-server/internal/config"
	"ledger-sync-server/internal/currency"
	"ledger-sync-server/internal/handler"
	"ledger-sync-server/internal/middleware"
	"ledger-sync-server/internal/repository"
	"ledger-sync-server/internal/service"
	"ledger-sync-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := config.NewLogger(cfg)

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		log.Fatalf("Failed to connect to CouchDB: %v", err)
	}

	exists, err := client.DBExists(context.Background(), cfg.Database.Name)
	if err != nil {
		log.Fatalf("Failed to check database existence: %v", err)
	}

	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Database.Name); err != nil {
			log.Fatalf("Failed to create database: %v", err)
		}
		log.Infof("Created database: %s", cfg.Database.Name)
	}

	userRepo := repository.NewUserRepository(client, cfg.Database.Name)
	deviceRepo := repository.NewDeviceRepository(client, cfg.Database.Name)
	txRepo := repository.NewTransactionRepository(client, cfg.Database.Name)
	conflictRepo := repository.NewConflictRepository(client, cfg.Database.Name)

	provider := currency.NewHTTPProvider(cfg.Currency.ProviderBaseURL, cfg.Currency.Timeout)

	wsManager := websocket.NewManager(
		log,
		cfg.WebSocket.MaxConnPerUser,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	go wsManager.Run()

	notifier := websocket.NewNotifier(wsManager)

	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	userService := service.NewUserService(userRepo)
	deviceService := service.NewDeviceService(deviceRepo)

	conflictService := service.NewConflictService(conflictRepo, notifier, cfg.Sync.SourceDeviceID)
	conflictService.RegisterStore("transaction", service.NewTransactionEntityStore(txRepo))

	txService := service.NewTransactionService(txRepo, userRepo, conflictRepo, provider)

	tolerance, err := decimal.NewFromString(cfg.Revaluation.Tolerance)
	if err != nil {
		log.Fatalf("Invalid revaluation tolerance %q: %v", cfg.Revaluation.Tolerance, err)
	}
	revalService := service.NewRevaluationService(txRepo, userRepo, provider, notifier, log, cfg.Revaluation.BatchSize, tolerance)

	maintenanceService := service.NewMaintenanceService(
		conflictRepo,
		log,
		time.Duration(cfg.Maintenance.ResolvedRetentionDays)*24*time.Hour,
		time.Duration(cfg.Maintenance.StaleOpenDays)*24*time.Hour,
		cfg.Maintenance.Weekday,
		cfg.Maintenance.Hour,
	)
	maintenanceStop := make(chan struct{})
	maintenanceService.Start(maintenanceStop)

	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(log))

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	txHandler := handler.NewTransactionHandler(txService, revalService)
	syncHandler := handler.NewSyncHandler(conflictService)
	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret, log)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	protected.HandleFunc("/users/me", userHandler.GetMe).Methods("GET", "OPTIONS")
	protected.HandleFunc("/users/me", userHandler.UpdateMe).Methods("PUT", "OPTIONS")

	protected.HandleFunc("/devices", deviceHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/devices/register", deviceHandler.Register).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices/{id}", deviceHandler.Revoke).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/transactions", txHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/transactions", txHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/transactions/revalue", txHandler.Revalue).Methods("POST", "OPTIONS")
	protected.HandleFunc("/transactions/revalue/status/{jobId}", txHandler.RevalueStatus).Methods("GET", "OPTIONS")
	protected.HandleFunc("/transactions/{id}", txHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/transactions/{id}", txHandler.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/transactions/{id}", txHandler.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/transactions/{id}/revaluation-history", txHandler.RevaluationHistory).Methods("GET", "OPTIONS")

	protected.HandleFunc("/sync/edit", syncHandler.SubmitEdit).Methods("POST", "OPTIONS")
	protected.HandleFunc("/sync/conflicts", syncHandler.ListConflicts).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sync/conflicts/{id}", syncHandler.GetConflict).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sync/resolve/{id}", syncHandler.ResolveConflict).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Starting Ledger Sync Server on %s (env: %s)", addr, cfg.Server.Env)
		log.Infof("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	close(maintenanceStop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"ledger-sync-server"}`))
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"Ledger Sync Server API","version":"1.0.0","endpoints":{"/api/v1/auth/register":"POST","/api/v1/auth/login":"POST","/api/v1/transactions":"GET (protected)","/api/v1/sync/edit":"POST (protected)"}}`))
}
