package main

import (
	"context"

	"github.com/spf13/cobra"

	"convanalyzer/internal/analyzer"
	"convanalyzer/internal/evaluate"
)

var evaluateResults string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Compare model classifications against stored ground truth",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := firstNonEmpty(evaluateResults, cfg.Labeling.ResultsPath, cfg.Analysis.OutputPath)
		results, err := analyzer.LoadResults(path)
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
		logger.Debugw("evaluating", "results", len(results), "labels", len(labelMap), "path", path)
		return evaluate.Compare(results, labelMap).Render(cmd.OutOrStdout())
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateResults, "results", "", "analyze output file (default labeling.results_path, then analysis.output_path)")
}
