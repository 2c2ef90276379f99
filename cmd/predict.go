package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/parkcast/config"
	"github.com/kilianp07/parkcast/core/prediction"
	"github.com/kilianp07/parkcast/core/query"
)

func newPredictCmd(load func() (*config.Config, error)) *cobra.Command {
	var at string
	var emptyNow bool
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast availability at an arrival time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			backend, err := prediction.NewModel(cfg.Prediction.Module())
			if err != nil {
				return err
			}
			opts, err := cfg.Prediction.Options()
			if err != nil {
				return err
			}
			requested, err := query.ParseArrivalTime(at, opts.Location)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			arrival := query.ResolveArrival(requested, time.Now(), cfg.Server.ArrivalOffset())
			res := prediction.NewAdapter(backend, opts).Predict(arrival, emptyNow)
			return printJSON(cmd.OutOrStdout(), struct {
				Model   string    `json:"model"`
				Arrival time.Time `json:"arrival"`
				Result  any       `json:"result"`
			}{backend.Name(), arrival, res})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "arrival time (RFC3339 or 2006-01-02T15:04), defaults to now plus the configured offset")
	cmd.Flags().BoolVar(&emptyNow, "empty-now", false, "assume a spot is currently empty")
	return cmd
}
