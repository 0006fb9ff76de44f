package main

import (
	stdLog "log"
	"os"
	"time"

	"github.com/Astemirdum/circulation-service/circulation/config"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	storageDriver string
	debug         bool
)

var rootCmd = &cobra.Command{
	Use:   "circulation",
	Short: "Library circulation and inventory service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			stdLog.Fatal("load envs from .env ", zap.Error(err))
		}
	},
	SilenceUsage: true,
}

func loadConfig() *config.Config {
	opts := []config.Option{config.WithWriteTimeout(time.Minute)}
	if debug {
		opts = append(opts, config.WithLogLevel(zapcore.DebugLevel))
	}
	if storageDriver != "" {
		opts = append(opts, config.WithStorageDriver(storageDriver))
	}
	return config.NewConfig(opts...)
}

// @title Circulation API
// @version 1.0
// @description Library circulation and inventory service.
// @host localhost:8080
// @BasePath /api/v1
func main() {
	rootCmd.PersistentFlags().StringVar(&storageDriver, "storage", "", "storage driver: postgres, sqlite or memory (overrides STORAGE_DRIVER)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	rootCmd.AddCommand(serveCmd, migrateCmd, expireCmd, auditCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
