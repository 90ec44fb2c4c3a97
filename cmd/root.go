package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgepoint/gentuner/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gentuner",
	Short: "Adaptive generation parameter tuning engine",
	Long:  "Records generation attempts with their quality signals, mines the parameter ranges that produced high scores, and serves tuned generation configs from the command line or over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
