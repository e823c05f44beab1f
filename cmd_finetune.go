package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"convanalyzer/internal/analyzer"
	"convanalyzer/internal/finetune"
)

var finetuneFlags struct {
	input  string
	output string
}

var finetuneCmd = &cobra.Command{
	Use:   "finetune",
	Short: "Build or validate chat fine-tuning data from ground-truth labels",
}

var finetuneBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Write one JSONL example per labeled conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		convs, err := analyzer.LoadConversations(firstNonEmpty(finetuneFlags.input, cfg.Analysis.InputPath))
		if err != nil {
			return err
		}
		svc, closeDB, err := openLabelService()
		if err != nil {
			return err
		}
		defer closeDB()
		labelMap, err := svc.Map(context.Background())
		if err != nil {
			return err
		}

		outputPath := firstNonEmpty(finetuneFlags.output, cfg.Labeling.FineTuneDataPath)
		if dir := filepath.Dir(outputPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outputPath, err)
		}
		stats, err := finetune.Build(f, convs, labelMap)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", outputPath, cerr)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d examples to %s (%d conversations unlabeled)\n",
			stats.Written, outputPath, stats.Unlabeled)
		return nil
	},
}

var finetuneValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a fine-tuning JSONL file line by line",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Labeling.FineTuneDataPath
		if len(args) == 1 {
			path = args[0]
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		rep, err := finetune.Validate(f)
		if err != nil {
			return err
		}
		if err := rep.Render(cmd.OutOrStdout()); err != nil {
			return err
		}
		if !rep.OK() {
			return fmt.Errorf("%s: %d of %d lines invalid", path, rep.Total-rep.Valid, rep.Total)
		}
		return nil
	},
}

func init() {
	finetuneBuildCmd.Flags().StringVarP(&finetuneFlags.input, "input", "i", "", "cleaned conversations file (default analysis.input_path)")
	finetuneBuildCmd.Flags().StringVarP(&finetuneFlags.output, "output", "o", "", "JSONL output (default labeling.fine_tune_path)")
	finetuneCmd.AddCommand(finetuneBuildCmd, finetuneValidateCmd)
}
