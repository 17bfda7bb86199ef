package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdnet-scout/internal/aggregation"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
	"github.com/tphakala/birdnet-scout/internal/observability/metrics"
)

const defaultDedupeWindow = 48 * time.Hour

// RecordSource supplies the stored detections to aggregate.
type RecordSource interface {
	Detections(ctx context.Context) ([]detection.Detection, error)
}

// ObservationNotifier announces each confirmed observation once.
type ObservationNotifier struct {
	sender  Sender
	records RecordSource
	title   string
	window  time.Duration
	seen    *cache.Cache
	metrics *metrics.NotificationMetrics
}

// NewObservationNotifier returns a notifier that remembers announced
// observations for window. m may be nil.
func NewObservationNotifier(sender Sender, records RecordSource, title string, window time.Duration, m *metrics.NotificationMetrics) *ObservationNotifier {
	if window <= 0 {
		window = defaultDedupeWindow
	}
	if title == "" {
		title = "BirdNET-Scout"
	}
	return &ObservationNotifier{
		sender:  sender,
		records: records,
		title:   title,
		window:  window,
		seen:    cache.New(window, window/2),
		metrics: m,
	}
}

// Check aggregates the stored detections with cfg and sends one message per
// observation that has not been announced yet. An observation that fails to
// send is retried on the next call.
func (n *ObservationNotifier) Check(ctx context.Context, cfg detection.Config) error {
	records, err := n.records.Detections(ctx)
	if err != nil {
		return err
	}

	summary := aggregation.Summarize(records, cfg.MinSampleThreshold, cfg.Timezone)

	var errs []error
	sent := 0
	for _, date := range summary.Dates {
		for i := range summary.Observations[date] {
			obs := &summary.Observations[date][i]
			key := observationKey(obs)
			if _, found := n.seen.Get(key); found {
				n.metrics.RecordSuppressed()
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			err := n.sender.Send(n.title, FormatObservation(obs))
			n.metrics.RecordSend(err)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			n.seen.Set(key, struct{}{}, n.window)
			sent++
		}
	}

	if sent > 0 {
		GetLogger().Info("Sent observation notifications", logger.Int("count", sent))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Flush forgets every announced observation.
func (n *ObservationNotifier) Flush() {
	n.seen.Flush()
}

// FormatObservation renders the message body for obs.
func FormatObservation(obs *aggregation.Observation) string {
	msg := fmt.Sprintf("%s (%s) confirmed on %s: %d detections, %s audio confidence",
		obs.Common, obs.Scientific, obs.Date, obs.SampleCount, aggregation.Percent(obs.MeanAudioConfidence))
	if obs.Link != "" {
		msg += "\n" + obs.Link
	}
	return msg
}

func observationKey(obs *aggregation.Observation) string {
	return obs.Date + "|" + obs.Scientific + "|" + obs.Common + "|" + obs.Location
}
