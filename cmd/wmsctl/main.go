// Command wmsctl runs database maintenance and tenant provisioning outside the HTTP API.
package main

import (
	"fmt"
	"os"

	"depot-backend/internal/config"
	"depot-backend/internal/database"
	"depot-backend/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// env carries what every subcommand needs once the root pre-run has finished.
type env struct {
	cfg *config.Config
	db  *gorm.DB
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var verbose bool

	root := &cobra.Command{
		Use:           "wmsctl",
		Short:         "Depot backend administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			zlog, err := logger.New(level, "console", true)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(zlog)

			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			e.cfg, e.db = cfg, db
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			_ = zap.L().Sync()
			return database.Close(e.db)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newMigrateCmd(e))
	root.AddCommand(newSeedCmd(e))
	root.AddCommand(newProvisionCmd(e))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
