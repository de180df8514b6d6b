package main

import (
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stars4all/nixnox-cli/internal/ingest"
	"github.com/stars4all/nixnox-cli/internal/store"
)

var ingestBatteryLog string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load photometer observation files into the database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if ingestBatteryLog != "" && len(args) != 1 {
			return eris.New("--battery-log applies to a single input file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		resolver, err := initResolver()
		if err != nil {
			return err
		}
		coord := ingest.NewCoordinator(st, resolver)

		if ingestBatteryLog != "" {
			return ingestWithBatteryLog(cmd, coord, args[0])
		}

		var stored, duplicates, failed int
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Ingest.MaxConcurrentFiles)
		results := make([]error, len(args))
		for i, path := range args {
			g.Go(func() error {
				data, err := os.ReadFile(path)
				if err != nil {
					results[i] = eris.Wrapf(err, "read %s", path)
					return nil
				}
				_, results[i] = coord.Ingest(gctx, path, data)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, err := range results {
			var dup *store.DuplicateError
			switch {
			case err == nil:
				stored++
			case errors.As(err, &dup):
				duplicates++
				zap.L().Warn("already ingested",
					zap.String("file", args[i]),
					zap.String("existing_identifier", dup.Existing.Identifier),
				)
			default:
				failed++
				zap.L().Error("ingestion failed", zap.String("file", args[i]), zap.Error(err))
			}
		}

		zap.L().Info("ingestion complete",
			zap.Int("stored", stored),
			zap.Int("duplicates", duplicates),
			zap.Int("failed", failed),
		)
		if failed > 0 {
			return eris.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

// ingestWithBatteryLog handles the single-file path where a raw TAS
// instrument log supplies the battery voltage the primary file omits.
func ingestWithBatteryLog(cmd *cobra.Command, coord *ingest.Coordinator, path string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	rawData, err := os.ReadFile(ingestBatteryLog)
	if err != nil {
		return eris.Wrapf(err, "read %s", ingestBatteryLog)
	}

	obs, err := coord.IngestWithRawLog(ctx, path, data, rawData)
	if err != nil {
		return err
	}
	zap.L().Info("ingestion complete", zap.String("identifier", obs.Identifier))
	return nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestBatteryLog, "battery-log", "", "raw TAS instrument log to backfill battery voltage from")
	rootCmd.AddCommand(ingestCmd)
}
