package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/parkcast/config"
	"github.com/kilianp07/parkcast/core/calibration"
	"github.com/kilianp07/parkcast/core/history"
	"github.com/kilianp07/parkcast/core/ingest"
	"github.com/kilianp07/parkcast/core/snapshot"
	"github.com/kilianp07/parkcast/infra/logger"
)

func newIngestCmd(load func() (*config.Config, error)) *cobra.Command {
	var camera, file, at string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Append one camera analysis result to the history log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if camera == "" {
				return fmt.Errorf("--camera is required")
			}
			var ts time.Time
			if at != "" {
				var err error
				if ts, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			raw, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			calib, err := calibration.Load(cfg.Calibration.Path)
			if err != nil {
				return fmt.Errorf("calibration: %w", err)
			}
			hist, err := history.NewLog(cfg.History.Module())
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()

			h := ingest.NewHandler(snapshot.NewStore(hist), calib, logger.New("ingest"))
			out, err := h.Ingest(cmd.Context(), camera, raw, ts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&camera, "camera", "", "camera id")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "analysis result JSON file, - for stdin")
	cmd.Flags().StringVar(&at, "at", "", "observation time (RFC3339), defaults to now")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
