package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// DetectionPublisher publishes each saved detection as one JSON message in
// the ingestion wire format.
type DetectionPublisher struct {
	client Client
	topic  string
}

// NewDetectionPublisher returns a publisher for topic.
func NewDetectionPublisher(client Client, topic string) *DetectionPublisher {
	return &DetectionPublisher{client: client, topic: topic}
}

// PublishDetections sends every detection, reconnecting first if needed.
// All detections are attempted; the returned error joins the failures.
func (p *DetectionPublisher) PublishDetections(ctx context.Context, detections []detection.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}

	var errs []error
	for i := range detections {
		payload, err := json.Marshal(detection.ToPayload(&detections[i]))
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding %s: %w", detections[i].Scientific, err))
			continue
		}
		if err := p.client.Publish(ctx, p.topic, payload); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if len(errs) > 0 {
		GetLogger().Warn("Some detections were not published",
			logger.Int("failed", len(errs)),
			logger.Int("total", len(detections)),
			logger.String("topic", p.topic))
		return errors.Join(errs...)
	}

	GetLogger().Debug("Published detections",
		logger.Int("count", len(detections)),
		logger.String("topic", p.topic))
	return nil
}
