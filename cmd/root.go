package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "binderlab",
	Short: "Asphalt binder test extraction and review",
	Long:  "Parses binder lab reports, fills gaps with an AI fallback, reconciles reviewer corrections with provenance and checks results against compliance standards.",
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
