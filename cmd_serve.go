package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"convanalyzer/internal/analyzer"
	"convanalyzer/internal/api"
	"convanalyzer/internal/auth"
	"convanalyzer/internal/models"
	"convanalyzer/internal/service/labels"
	"convanalyzer/internal/service/runs"
)

var serveFlags struct {
	input   string
	results string
	addr    string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the manual labeling server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.input, "input", "i", "", "cleaned conversations file (default analysis.input_path)")
	f.StringVar(&serveFlags.results, "results", "", "analyze output shown next to each conversation (default labeling.results_path)")
	f.StringVar(&serveFlags.addr, "addr", "", "listen address (default basic_config.server_address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	convs, err := analyzer.LoadConversations(firstNonEmpty(serveFlags.input, cfg.Analysis.InputPath))
	if err != nil {
		return err
	}
	var results []models.Result
	if path := firstNonEmpty(serveFlags.results, cfg.Labeling.ResultsPath); path != "" {
		if results, err = analyzer.LoadResults(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			logger.Warnw("results file not found, serving without model classifications", "path", path)
		}
	}

	db, dbType, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()
	labelSvc, err := labels.NewService(db, dbType)
	if err != nil {
		return fmt.Errorf("init label service: %w", err)
	}
	runSvc, err := runs.NewService(db, dbType)
	if err != nil {
		return fmt.Errorf("init run service: %w", err)
	}
	authSvc := auth.NewService(cfg.Labeling.AuthToken, cfg.Labeling.LabeledBy)
	if !authSvc.Enabled() {
		logger.Warn("labeling.auth_token is empty; the API is open to anyone who can reach it")
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	api.NewHandler(convs, results, labelSvc, runSvc, authSvc, logger).RegisterRoutes(router)

	addr := firstNonEmpty(serveFlags.addr, cfg.BasicConfig.ServerAddress, ":8090")
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("labeling server listening", "addr", addr, "conversations", len(convs), "results", len(results))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down labeling server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
