package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"convanalyzer/internal/config"
	"convanalyzer/internal/logging"
	"convanalyzer/internal/storage"
)

var (
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:           "convanalyzer",
	Short:         "Classify customer-service conversations with a hosted LLM",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = os.Getenv("CONVANALYZER_CONFIG")
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logCfg := logging.Config{
			Level:      cfg.Logging.Level,
			OutputPath: cfg.Logging.OutputPath,
			Encoding:   cfg.Logging.Encoding,
			DevMode:    cfg.Logging.DevMode,
		}
		if verbose {
			logCfg.Level = "debug"
		}
		logger, err = logging.New(logCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default config.json, or $CONVANALYZER_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(analyzeCmd, preprocessCmd, serveCmd, labelsCmd, evaluateCmd, finetuneCmd, runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDatabase opens and migrates the configured label store.
func openDatabase() (*sql.DB, string, error) {
	dbType := strings.TrimSpace(cfg.BasicConfig.Database)
	if dbType == "" {
		dbType = config.DefaultDatabase
	}
	logger.Debugw("opening database", "driver", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, dbType); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("migrate database: %w", err)
	}
	return db, dbType, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
