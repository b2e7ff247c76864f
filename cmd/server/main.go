// Package main initializes and starts the Dockhand server, setting up
// configuration, logging, database connections, repositories, services,
// handlers and the sync scheduler.
package main

import (
	"cmp"
	"fmt"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/d0dg3r/dockhand/internal/config"
	"github.com/d0dg3r/dockhand/internal/crypto"
	"github.com/d0dg3r/dockhand/internal/db"
	"github.com/d0dg3r/dockhand/internal/deploy"
	"github.com/d0dg3r/dockhand/internal/logger"
	"github.com/d0dg3r/dockhand/internal/repository"
	"github.com/d0dg3r/dockhand/internal/scheduler"
	"github.com/d0dg3r/dockhand/internal/server/handler/http"
	"github.com/d0dg3r/dockhand/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Port
	dbName := options.DatabaseDSN

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Initialize PostgreSQL connection.
	postgressDB, err := db.InitPostgres(dbName)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Initialize the at-rest encryption cipher.
	cipher, err := crypto.NewCipher([]byte(options.EncryptionKey))
	if err != nil {
		zapLogger.Fatal("cannot init encryption", zap.Error(err))
	}

	// Initialize repositories for stacks, env vars and vault configuration.
	stackRepo := repository.NewPostgresStackRepository(postgressDB)
	envVarRepo := repository.NewPostgresEnvVarRepository(postgressDB, cipher)
	vaultConfigRepo := repository.NewPostgresVaultConfigRepository(postgressDB)

	// Initialize the secret sync service.
	syncService := service.NewSecretSyncService(envVarRepo, vaultConfigRepo, stackRepo, cipher, nil, zapLogger)

	// Create HTTP handlers for sync and vault configuration endpoints.
	syncHandler := &http.SyncHandler{
		SyncService: syncService,
		Stacks:      stackRepo,
		Deployer:    deploy.NewComposeDeployer(zapLogger),
		Log:         zapLogger,
	}
	vaultHandler := &http.VaultConfigHandler{
		Store:     vaultConfigRepo,
		Encrypter: cipher,
		Test:      http.DefaultConnectionTester(zapLogger),
		Log:       zapLogger,
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(syncHandler, vaultHandler, zapLogger)

	// Start the scheduled fleet sync when configured.
	if options.SyncSchedule != "" {
		sched, err := scheduler.New(options.SyncSchedule, syncService, zapLogger)
		if err != nil {
			zapLogger.Fatal("cannot init sync scheduler", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	// Create and start the HTTP server.
	server := &nethttp.Server{
		Addr:    addr,
		Handler: router,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
