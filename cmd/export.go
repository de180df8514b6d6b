package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stars4all/nixnox-cli/internal/export"
)

var exportOutDir string

var exportCmd = &cobra.Command{
	Use:   "export <identifier>",
	Short: "Write a stored observation back to a self-describing file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identifier := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		bundle, err := st.Bundle(ctx, identifier)
		if err != nil {
			return eris.Wrapf(err, "export %s", identifier)
		}
		table, err := export.Table(bundle)
		if err != nil {
			return err
		}

		path := filepath.Join(exportOutDir, export.Filename(identifier))
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create %s", path)
		}
		defer f.Close()

		if err := table.Write(f); err != nil {
			return eris.Wrapf(err, "write %s", path)
		}

		zap.L().Info("observation exported",
			zap.String("identifier", identifier),
			zap.String("path", path),
			zap.Int("rows", len(table.Rows)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutDir, "out", ".", "output directory")
	rootCmd.AddCommand(exportCmd)
}
