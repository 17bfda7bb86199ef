package rangefilter

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-scout/internal/aggregation"
	"github.com/tphakala/birdnet-scout/internal/birdnet"
	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/detection"
)

// PrintCommand creates the print subcommand
func PrintCommand(settings *conf.Settings) *cobra.Command {
	var (
		dateStr string
		week    int
	)

	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the species expected at a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			isoWeek, err := resolveWeek(dateStr, week, time.Now())
			if err != nil {
				return err
			}
			loc := detection.Location{Lat: settings.BirdNET.Latitude, Lon: settings.BirdNET.Longitude}
			if err := loc.Validate(); err != nil {
				return err
			}

			labels, err := birdnet.LoadLabels(settings.BirdNET.LabelPath)
			if err != nil {
				return err
			}
			model, err := birdnet.NewRangeModel(&settings.BirdNET, labels)
			if err != nil {
				return err
			}
			defer model.Delete()

			prior, err := birdnet.NewLocationPrior(model, 0).Compute(cmd.Context(), loc.Lat, loc.Lon, isoWeek)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Location %s, ISO week %d: %d species\n\n", loc, isoWeek, len(prior))
			return printPrior(cmd.OutOrStdout(), prior)
		},
	}

	printCmd.Flags().Float64Var(&settings.BirdNET.Latitude, "latitude", settings.BirdNET.Latitude, "Latitude for range filter")
	printCmd.Flags().Float64Var(&settings.BirdNET.Longitude, "longitude", settings.BirdNET.Longitude, "Longitude for range filter")
	printCmd.Flags().StringVar(&settings.BirdNET.RangeFilter.ModelPath, "model", settings.BirdNET.RangeFilter.ModelPath, "Range model path")
	printCmd.Flags().StringVar(&dateStr, "date", "", "Date in ISO 8601 format (YYYY-MM-DD)")
	printCmd.Flags().IntVar(&week, "week", 0, "ISO week number, 1 to 53")

	return printCmd
}

// resolveWeek picks the ISO week from an explicit week, a date, or now.
func resolveWeek(dateStr string, week int, now time.Time) (int, error) {
	if week != 0 {
		if week < 1 || week > 53 {
			return 0, fmt.Errorf("invalid week number %d, valid range is 1 to 53", week)
		}
		return week, nil
	}
	if dateStr == "" {
		return birdnet.ISOWeek(now), nil
	}
	date, err := time.Parse(aggregation.DateLayout, dateStr)
	if err != nil {
		return 0, fmt.Errorf("invalid date format: %w", err)
	}
	return birdnet.ISOWeek(date), nil
}

type scoredLabel struct {
	label string
	score float64
}

// printPrior writes labels by descending score.
func printPrior(w io.Writer, prior birdnet.PriorMap) error {
	rows := make([]scoredLabel, 0, len(prior))
	for label, score := range prior {
		rows = append(rows, scoredLabel{label, score})
	}
	slices.SortFunc(rows, func(a, b scoredLabel) int {
		return cmp.Or(cmp.Compare(b.score, a.score), cmp.Compare(a.label, b.label))
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tSPECIES\tSCIENTIFIC NAME")
	for _, r := range rows {
		taxon, err := detection.ParseTaxon(r.label)
		if err != nil {
			fmt.Fprintf(tw, "%.4f\t%s\t\n", r.score, r.label)
			continue
		}
		fmt.Fprintf(tw, "%.4f\t%s\t%s\n", r.score, taxon.Common, taxon.Scientific)
	}
	return tw.Flush()
}
