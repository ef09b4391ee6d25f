// Package cli provides the cashbook command line.
package cli

import (
	"fmt"

	"cashbook/internal/backup"
	"cashbook/internal/balance"
	"cashbook/internal/budget"
	"cashbook/internal/config"
	"cashbook/internal/database"
	"cashbook/internal/export"
	"cashbook/internal/ledger"
	"cashbook/internal/logger"
	"cashbook/internal/router"
	"cashbook/internal/scheduler"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "cashbook",
	Short: "Double-entry ledger with scheduled transactions and budgets",
	Long: `cashbook keeps a double-entry ledger in a SQLite file.

Example:
  cashbook migrate
  cashbook serve
  cashbook tick --now 2024-04-20
  cashbook export yaml --delete`,
	SilenceUsage: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml if present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, migrateCmd, tickCmd, balanceCmd, exportCmd, importCmd, backupCmd, tokenCmd)
}

// app is everything a command needs, built from the config file.
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	db        *gorm.DB
	store     *ledger.Store
	balance   *balance.Engine
	budgets   *budget.Tracker
	backups   *backup.Manager
	exports   *export.Service
	scheduler *scheduler.Engine
}

// loadConfig reads the config and builds the logger.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openApp opens the ledger file, applies pending migrations and wires the
// services on top of the store.
func openApp() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.Init(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store := ledger.NewStore(db, log)
	backups := backup.NewManager(store, cfg.Backup, cfg.Security.EncryptionKey, log)
	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		store:     store,
		balance:   balance.NewEngine(store, log),
		budgets:   budget.NewTracker(store, log),
		backups:   backups,
		exports:   export.NewService(store, backups, cfg.Export.Dir, cfg.Ledger.OpeningBalanceAccount, log),
		scheduler: scheduler.NewEngine(store, log, nil, backups),
	}, nil
}

func (a *app) deps() router.Deps {
	return router.Deps{
		Store:     a.store,
		Balance:   a.balance,
		Budgets:   a.budgets,
		Backups:   a.backups,
		Exports:   a.exports,
		Scheduler: a.scheduler,
		Log:       a.log,
	}
}

func (a *app) Close() {
	if err := database.Close(a.db); err != nil {
		a.log.WithError(err).Warn("close database")
	}
}
