package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/parkcast/config"
	"github.com/kilianp07/parkcast/core/history"
	"github.com/kilianp07/parkcast/core/model"
)

func newHistoryCmd(load func() (*config.Config, error)) *cobra.Command {
	var camera, since, until string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print spot history records as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := history.Query{CameraID: camera}
			var err error
			if q.Start, err = parseFlagTime(since); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if q.End, err = parseFlagTime(until); err != nil {
				return fmt.Errorf("--until: %w", err)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			hist, err := history.NewLog(cfg.History.Module())
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()
			recs, err := hist.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			if recs == nil {
				recs = []model.HistoryRecord{}
			}
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&camera, "camera", "", "only records of this camera")
	cmd.Flags().StringVar(&since, "since", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&until, "until", "", "end time (RFC3339)")
	return cmd
}

func parseFlagTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
