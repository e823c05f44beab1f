package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"convanalyzer/internal/analyzer"
	"convanalyzer/internal/redis"
	"convanalyzer/internal/service/ai"
	"convanalyzer/internal/service/runs"
)

var analyzeFlags struct {
	input     string
	output    string
	rangeExpr string
	yes       bool
	overwrite bool
	refresh   bool
	provider  string
	model     string
	delay     time.Duration
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify a range of conversations and append the results to the output file",
	Args:  cobra.NoArgs,
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.input, "input", "i", "", "cleaned conversations file (default analysis.input_path)")
	f.StringVarP(&analyzeFlags.output, "output", "o", "", "results file (default analysis.output_path)")
	f.StringVarP(&analyzeFlags.rangeExpr, "range", "r", "", "conversations to analyze: 'all', 'N' or 'S-E' (prompted when omitted)")
	f.BoolVarP(&analyzeFlags.yes, "yes", "y", false, "skip the confirmation prompt")
	f.BoolVar(&analyzeFlags.overwrite, "overwrite", false, "replace the output file instead of appending to it")
	f.BoolVar(&analyzeFlags.refresh, "refresh", false, "ignore cached classifications and re-ask the model")
	f.StringVar(&analyzeFlags.provider, "provider", "", "model provider: openai, claude or gemini")
	f.StringVar(&analyzeFlags.model, "model", "", "model name for the provider")
	f.DurationVar(&analyzeFlags.delay, "delay", 0, "pause between model calls (default analysis.delay_ms)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	inputPath := firstNonEmpty(analyzeFlags.input, cfg.Analysis.InputPath)
	outputPath := firstNonEmpty(analyzeFlags.output, cfg.Analysis.OutputPath)

	convs, err := analyzer.LoadConversations(inputPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %d conversations from %s\n", len(convs), inputPath)

	in := bufio.NewReader(cmd.InOrStdin())
	var sel analyzer.Selection
	if analyzeFlags.rangeExpr != "" {
		if sel, err = analyzer.ParseSelection(analyzeFlags.rangeExpr); err != nil {
			return err
		}
	} else if sel, err = promptSelection(in, out); err != nil {
		return err
	}
	selected := sel.Apply(convs)
	description := sel.Describe(len(convs))
	fmt.Fprintf(out, "\nStarting analysis of %s (%d selected)...\n", description, len(selected))
	if !analyzeFlags.yes && !confirm(in, out, "Continue? (y/n): ") {
		fmt.Fprintln(out, "Operation cancelled.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providerName := strings.ToLower(firstNonEmpty(analyzeFlags.provider, cfg.Analysis.Provider))
	pc, ok := cfg.Provider(providerName)
	if !ok {
		return fmt.Errorf("%w: %s", ai.ErrUnknownProvider, providerName)
	}
	if analyzeFlags.model != "" {
		pc.Model = analyzeFlags.model
	}
	completer, err := ai.NewCompleter(ctx, ai.ProviderSettings{
		Provider: providerName,
		BaseURL:  pc.BaseURL,
		Model:    pc.Model,
		APIKey:   pc.APIKey,
	})
	if err != nil {
		return fmt.Errorf("init %s completer: %w", providerName, err)
	}

	opts := []analyzer.Option{
		analyzer.WithDelay(time.Duration(cfg.Analysis.DelayMillis) * time.Millisecond),
		analyzer.WithRetryPolicy(analyzer.RetryPolicy{
			MaxRetries:  cfg.Analysis.MaxRetries,
			BaseBackoff: time.Duration(cfg.Analysis.BackoffBaseMillis) * time.Millisecond,
			MaxBackoff:  time.Duration(cfg.Analysis.BackoffMaxMillis) * time.Millisecond,
		}),
		analyzer.WithCallTimeout(time.Duration(cfg.Analysis.RequestTimeoutSeconds) * time.Second),
		analyzer.WithLogger(logger),
		analyzer.WithModelName(pc.Model),
		analyzer.WithProgress(func(done, total int) {
			fmt.Fprintf(out, "[%d/%d] processed\n", done, total)
		}),
	}
	if cmd.Flags().Changed("delay") {
		opts = append(opts, analyzer.WithDelay(analyzeFlags.delay))
	}
	cache, closeCache := openClassificationCache(ctx)
	defer closeCache()
	if cache != nil {
		opts = append(opts, analyzer.WithCache(cache), analyzer.WithRefresh(analyzeFlags.refresh))
	}

	batch, runErr := analyzer.New(completer, opts...).Run(ctx, selected)
	interrupted := errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		logger.WithError(runErr).Error("analysis stopped")
	}
	if interrupted {
		fmt.Fprintf(out, "\nInterrupted after %d conversations; saving partial results.\n", len(batch.Results))
	}

	stats, err := analyzer.SaveResults(outputPath, batch.Results, !analyzeFlags.overwrite)
	if err != nil {
		return err
	}
	if stats.Corrupt {
		logger.Warnw("existing results file was unreadable and has been replaced", "path", outputPath)
	}
	fmt.Fprintf(out, "Saved %d results to %s (%d new, %d previous)\n", stats.Written, outputPath, len(batch.Results), stats.Previous)

	recordRun(runs.Run{
		RunID:       batch.RunID,
		Model:       batch.Model,
		InputPath:   inputPath,
		OutputPath:  outputPath,
		Selection:   description,
		Processed:   len(batch.Results),
		Succeeded:   batch.Succeeded,
		Failed:      batch.Failed,
		Interrupted: interrupted,
		StartedAt:   batch.StartedAt,
		FinishedAt:  batch.FinishedAt,
	})

	if err := analyzer.Summarize(batch.Results).Render(out); err != nil {
		return err
	}
	if runErr != nil && !interrupted {
		return runErr
	}
	return nil
}

// promptSelection asks until the answer parses. EOF cancels.
func promptSelection(in *bufio.Reader, out io.Writer) (analyzer.Selection, error) {
	for {
		fmt.Fprint(out, "\nEnter conversations to analyze (examples: '10', 'all', '11-50'): ")
		line, err := in.ReadString('\n')
		if strings.TrimSpace(line) == "" && err != nil {
			return analyzer.Selection{}, fmt.Errorf("read selection: %w", err)
		}
		sel, perr := analyzer.ParseSelection(strings.TrimSpace(line))
		if perr == nil {
			return sel, nil
		}
		fmt.Fprintln(out, "Please enter a valid number, range (e.g. '11-50'), or 'all'.")
		if err != nil {
			return analyzer.Selection{}, fmt.Errorf("read selection: %w", err)
		}
	}
}

func confirm(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprint(out, question)
	line, _ := in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// openClassificationCache prefers redis and falls back to the local bolt file.
// A cache that cannot be opened is logged and skipped.
func openClassificationCache(ctx context.Context) (analyzer.Cache, func()) {
	ttl := time.Duration(cfg.Redis.TTLMinutes) * time.Minute
	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err == nil {
			return ai.NewResultCache(client, ttl, logger), func() { _ = client.Close() }
		}
		logger.WithError(err).Warn("redis unavailable, continuing without shared cache")
	}
	if cfg.Analysis.CachePath != "" {
		bc, err := ai.OpenBoltCache(cfg.Analysis.CachePath, ttl, logger)
		if err == nil {
			return bc, func() { _ = bc.Close() }
		}
		logger.WithError(err).Warn("local cache unavailable")
	}
	return nil, func() {}
}

// recordRun stores run bookkeeping. Failures never fail the analysis.
func recordRun(run runs.Run) {
	db, dbType, err := openDatabase()
	if err != nil {
		logger.WithError(err).Warn("skipping run record")
		return
	}
	defer db.Close()
	svc, err := runs.NewService(db, dbType)
	if err != nil {
		logger.WithError(err).Warn("skipping run record")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Record(ctx, run); err != nil {
		logger.WithError(err).Warn("skipping run record")
		return
	}
	logger.Infow("run recorded", "run_id", run.RunID.String())
}
