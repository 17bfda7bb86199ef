// Package observations prints the confirmed observations in the local store.
package observations

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-scout/internal/aggregation"
	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/datastore"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// Command creates the observations command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "observations",
		Short: "Print confirmed observations from the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.New(settings)
			if err != nil {
				return err
			}
			if err := store.Open(); err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Global().Module("observations").Warn("Failed to close datastore", logger.Error(err))
				}
			}()

			rec, err := store.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			cfg, err := rec.PercentConfig().Normalize()
			if err != nil {
				return err
			}
			records, err := store.Detections(cmd.Context())
			if err != nil {
				return err
			}

			summary := aggregation.Summarize(records, cfg.MinSampleThreshold, cfg.Timezone)
			discovered := aggregation.Discovered(records, cfg.MinSampleThreshold)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), summary, discovered)
			}
			return printSummary(cmd.OutOrStdout(), summary, discovered)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the API response JSON")
	return cmd
}

func printSummary(w io.Writer, summary aggregation.Summary, discovered int) error {
	if summary.Len() == 0 {
		_, err := fmt.Fprintln(w, "No confirmed observations")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, date := range summary.Dates {
		fmt.Fprintf(tw, "%s\n", date)
		for _, obs := range summary.Observations[date] {
			fmt.Fprintf(tw, "  %s\t%s\t%d detections\t%s\t%s\n",
				obs.Common, obs.Scientific, obs.SampleCount,
				aggregation.Percent(obs.MeanAudioConfidence),
				obs.Location)
		}
	}
	fmt.Fprintf(tw, "\n%d species discovered\n", discovered)
	return tw.Flush()
}

func printJSON(w io.Writer, summary aggregation.Summary, discovered int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		aggregation.Summary
		TotalDiscovered int `json:"total_discovered"`
	}{summary, discovered})
}
