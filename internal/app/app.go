package app

import (
	"fmt"
	"os"
	"time"

	"tcprefs-go/internal/config"
	"tcprefs-go/internal/database"
	"tcprefs-go/internal/remote"
	"tcprefs-go/internal/secrets"
	"tcprefs-go/internal/tc"
)

// App is the application layer between the CLI and the Service.
// It constructs all dependencies from config and manages the store
// lifecycle on Close.
type App struct {
	cfg     *config.Config
	store   tc.Store
	service *tc.Service
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(cfg *config.Config) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date (run `tcprefs migrate`): %w", err)
	}

	cipher, err := secrets.NewCipherFromConfig(cfg.Secrets, secrets.TerminalPassphrase("Key passphrase: "))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := tc.NewService(store, remote.NewClient(), cipher, &slogAdapter{l: logger}, tc.RealClock{}, tc.UUIDGenerator{})

	return &App{
		cfg:     cfg,
		store:   store,
		service: svc,
		logFile: logFile,
	}, nil
}

// Service returns the wired domain service.
func (a *App) Service() *tc.Service { return a.service }

// Config returns the effective configuration.
func (a *App) Config() *config.Config { return a.cfg }

// BatchSize returns the configured import batch size.
func (a *App) BatchSize() int {
	if a.cfg.Import.BatchSize > 0 {
		return a.cfg.Import.BatchSize
	}
	return tc.DefaultBatchSize
}

// MaxParallel returns the configured comparison refresh parallelism.
func (a *App) MaxParallel() int {
	if a.cfg.Compare.MaxParallel > 0 {
		return a.cfg.Compare.MaxParallel
	}
	return 4
}

// Close closes all resources.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
