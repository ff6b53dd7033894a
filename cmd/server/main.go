package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"designguard/internal/config"
	"designguard/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "designguard",
	Short: "DesignGuard marketplace and chat backend",
	Long: `DesignGuard connects factory owners with vepari traders: design
catalogues behind access approval, orders, notifications and live chat.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(workerCmd)
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.IsDevelopment(), cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	if !cfg.EnvFileLoaded {
		log.Warn("no .env file loaded, using process environment")
	}
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
