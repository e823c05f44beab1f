package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"convanalyzer/internal/service/labels"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Export or import ground-truth labels",
}

var labelsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every label as a JSON array (stdout when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := openLabelService()
		if err != nil {
			return err
		}
		defer closeDB()

		var w io.Writer = cmd.OutOrStdout()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[0], err)
			}
			defer f.Close()
			w = f
		}
		n, err := svc.Export(context.Background(), w)
		if err != nil {
			return err
		}
		logger.Infow("labels exported", "count", n)
		return nil
	},
}

var labelsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert labels from an exported JSON array; any invalid entry aborts the import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := openLabelService()
		if err != nil {
			return err
		}
		defer closeDB()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		n, err := svc.Import(context.Background(), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d labels from %s\n", n, args[0])
		return nil
	},
}

func init() {
	labelsCmd.AddCommand(labelsExportCmd, labelsImportCmd)
}

func openLabelService() (*labels.Service, func(), error) {
	db, dbType, err := openDatabase()
	if err != nil {
		return nil, nil, err
	}
	svc, err := labels.NewService(db, dbType)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, func() { _ = db.Close() }, nil
}
