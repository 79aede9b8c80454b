package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the IP ownership ledger",
	Long:  "ledgerctl inspects and maintains the ownership ledger database directly:\nmigrations, audit chain checks, owner listings, lineage repair and payout snapshots.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(ownersCmd)
	rootCmd.AddCommand(lineageCmd)
	rootCmd.AddCommand(reparentCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ledgerEnv is the set of services a command works with.
type ledgerEnv struct {
	cfg       *config.Config
	db        *gorm.DB
	store     *database.LedgerStore
	lineage   *services.LineageService
	ownership *services.OwnershipService
}

// openLedger loads configuration from the environment and connects to the ledger database.
func openLedger() (*ledgerEnv, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ConfigureLogging(cfg.Log); err != nil {
		return nil, nil, err
	}
	logrus.SetOutput(os.Stderr)

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	store := database.NewLedgerStore(db)
	env := &ledgerEnv{
		cfg:       cfg,
		db:        db,
		store:     store,
		lineage:   services.NewLineageService(store, cfg),
		ownership: services.NewOwnershipService(store, cfg),
	}
	return env, func() { database.Close(db) }, nil
}
