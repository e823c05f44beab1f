package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"convanalyzer/internal/service/runs"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent analyze runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, dbType, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		svc, err := runs.NewService(db, dbType)
		if err != nil {
			return err
		}
		list, err := svc.List(context.Background(), runsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN ID\tSTARTED\tMODEL\tSELECTION\tOK\tFAILED\tINTERRUPTED")
		for _, r := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%t\n",
				r.RunID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Model, r.Selection, r.Succeeded, r.Failed, r.Interrupted)
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show")
}
