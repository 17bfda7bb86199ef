// Package analyze classifies a single clip and prints the admitted detections.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-scout/internal/aggregation"
	"github.com/tphakala/birdnet-scout/internal/birdnet"
	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/logger"
	"github.com/tphakala/birdnet-scout/internal/myaudio"
)

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze [clip]",
		Short: "Analyze one clip and print its detections",
		Long:  "Classify a WAV or FLAC clip with the configured thresholds without storing anything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dets, err := analyzeClip(cmd.Context(), settings, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), dets)
			}
			return printTable(cmd.OutOrStdout(), dets)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print detections as ingestion payload JSON")
	return cmd
}

func analyzeClip(ctx context.Context, settings *conf.Settings, path string) ([]detection.Detection, error) {
	log := logger.Global().Module("analyze")

	cfg, err := settings.PercentConfig().Normalize()
	if err != nil {
		return nil, err
	}

	clip, err := clipFor(path, settings.ClipKeyMode())
	if err != nil {
		return nil, err
	}

	bn, err := birdnet.NewBirdNET(&settings.BirdNET)
	if err != nil {
		return nil, err
	}
	defer bn.Delete()

	var prior birdnet.PriorMap
	if cfg.Location != nil && settings.BirdNET.RangeFilter.ModelPath != "" {
		rangeModel, err := birdnet.NewRangeModel(&settings.BirdNET, bn.Labels)
		if err != nil {
			return nil, err
		}
		defer rangeModel.Delete()
		prior, err = birdnet.NewLocationPrior(rangeModel, 0).ForLocation(ctx, cfg.Location, time.Now())
		if err != nil {
			return nil, err
		}
	} else {
		log.Info("No location or range model, location check skipped")
	}

	raw, err := bn.Analyze(ctx, path, cfg.MinAudioConfidence)
	if err != nil {
		return nil, err
	}

	dets, stats := detection.Build(clip, raw, prior, cfg, time.Now())
	log.Info("Clip analyzed",
		logger.String("clip", clip.Name),
		logger.Int("candidates", stats.Candidates),
		logger.Int("admitted", stats.Admitted),
		logger.Int("malformed_labels", stats.MalformedLabels))
	return dets, nil
}

// clipFor parses the clip key of path. Files that are not named by key get
// their modification time as start and the decoded length as duration.
func clipFor(path string, mode detection.KeyMode) (detection.Clip, error) {
	name := filepath.Base(path)
	if clip, err := detection.ParseClipKey(name, mode); err == nil {
		return clip, nil
	}

	stat, err := os.Stat(path)
	if err != nil {
		return detection.Clip{}, err
	}
	info, err := myaudio.GetAudioInfo(path)
	if err != nil {
		return detection.Clip{}, err
	}
	if info.SampleRate <= 0 {
		return detection.Clip{}, fmt.Errorf("%s: invalid sample rate %d", name, info.SampleRate)
	}
	length := time.Duration(float64(info.TotalSamples) / float64(info.SampleRate) * float64(time.Second))

	start := stat.ModTime().UTC().Add(-length)
	return detection.Clip{
		Name:  name,
		Start: start,
		End:   start.Add(length),
		Ext:   filepath.Ext(name),
	}, nil
}

func printTable(w io.Writer, dets []detection.Detection) error {
	if len(dets) == 0 {
		_, err := fmt.Fprintln(w, "No detections")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tSPECIES\tSCIENTIFIC NAME\tAUDIO\tLOCATION")
	for i := range dets {
		d := &dets[i]
		fmt.Fprintf(tw, "%gs\t%gs\t%s\t%s\t%s\t%s\n",
			d.IntervalStart, d.IntervalEnd,
			d.Common, d.Scientific,
			aggregation.Percent(d.AudioConfidence),
			aggregation.Percent(d.LocationConfidence))
	}
	return tw.Flush()
}

func printJSON(w io.Writer, dets []detection.Detection) error {
	payloads := make([]detection.Payload, 0, len(dets))
	for i := range dets {
		payloads = append(payloads, detection.ToPayload(&dets[i]))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payloads)
}
