package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/quizforge/internal/config"
	"github.com/abhisek/quizforge/internal/logger"
	"github.com/abhisek/quizforge/internal/store"
)

// cliEnv is what every command that touches the database needs.
type cliEnv struct {
	cfg   config.Config
	log   *logger.Logger
	store *store.Store
}

// openRuntime loads configuration, builds the logger and opens the store.
// levelOverride, when set, replaces the configured log level.
func openRuntime(cmd *cobra.Command, levelOverride string) (*cliEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if levelOverride != "" {
		level = levelOverride
	}
	log, err := logger.NewWithOptions(logger.Options{Mode: cfg.Log.Mode, Level: level, Redact: true})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &cliEnv{cfg: cfg, log: log, store: st}, nil
}

func (r *cliEnv) Close() {
	r.store.Close()
	r.log.Sync()
}

// openStore opens only the database, for read-only reporting commands.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
