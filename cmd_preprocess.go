package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"convanalyzer/internal/analyzer"
	"convanalyzer/internal/preprocess"
)

var preprocessFlags struct {
	input       string
	output      string
	botSenderID string
	max         int
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Clean a raw chat platform export into the conversation file used by analyze",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := firstNonEmpty(preprocessFlags.input, cfg.Preprocess.RawPath)
		outputPath := firstNonEmpty(preprocessFlags.output, cfg.Analysis.InputPath)
		limit := cfg.Preprocess.MaxConversations
		if cmd.Flags().Changed("max") {
			limit = preprocessFlags.max
		}
		if limit < 0 {
			return errors.New("--max cannot be negative")
		}

		raws, err := preprocess.LoadRaw(inputPath)
		if err != nil {
			return err
		}
		convs, stats := preprocess.Run(raws, preprocess.Options{
			BotSenderID:      firstNonEmpty(preprocessFlags.botSenderID, cfg.Preprocess.BotSenderID),
			MaxConversations: limit,
			Logger:           logger,
		})
		if err := analyzer.WriteJSON(outputPath, convs); err != nil {
			return err
		}
		logger.Infow("preprocess finished", "read", stats.Read, "kept", stats.Kept, "dropped", stats.Dropped)
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d conversations to %s (%d read, %d dropped)\n",
			stats.Kept, outputPath, stats.Read, stats.Dropped)
		return nil
	},
}

func init() {
	f := preprocessCmd.Flags()
	f.StringVarP(&preprocessFlags.input, "input", "i", "", "raw export file (default preprocess.raw_path)")
	f.StringVarP(&preprocessFlags.output, "output", "o", "", "cleaned conversations file (default analysis.input_path)")
	f.StringVar(&preprocessFlags.botSenderID, "bot-id", "", "sender id of the bot account")
	f.IntVar(&preprocessFlags.max, "max", 0, "maximum conversations to keep, 0 keeps all (default preprocess.max_conversations)")
}
