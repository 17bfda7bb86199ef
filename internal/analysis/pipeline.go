// Package analysis drives the detection pipeline: each cycle it fetches the
// config, computes the location prior, classifies pending clips and persists
// the admitted detections.
package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/birdnet-scout/internal/birdnet"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
	"github.com/tphakala/birdnet-scout/internal/observability/metrics"
)

// DefaultInterval is the time between cycles when none is configured.
const DefaultInterval = 30 * time.Second

// Options wires a Pipeline. Config, Classifier, Store and Queue are
// required; the rest are optional.
type Options struct {
	Config     ConfigSource
	Prior      PriorSource
	Classifier Classifier
	Store      Store
	Queue      *DirectoryQueue
	KeyMode    detection.KeyMode
	Interval   time.Duration

	Publisher Publisher
	Notifier  Notifier
	Heartbeat Heartbeat
	Metrics   *metrics.PipelineMetrics

	// Now is the clock used for CreatedAt and the prior week, time.Now if nil.
	Now func() time.Time
}

// Pipeline is the detection driver. It processes clips sequentially on a
// single goroutine.
type Pipeline struct {
	opts Options
	now  func() time.Time
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	ID              string
	Pending         int
	Processed       int
	Failed          int
	Rejected        int
	Saved           int
	MalformedLabels int
	Duration        time.Duration
}

// NewPipeline validates opts and returns a Pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	var missing []string
	if opts.Config == nil {
		missing = append(missing, "config source")
	}
	if opts.Classifier == nil {
		missing = append(missing, "classifier")
	}
	if opts.Store == nil {
		missing = append(missing, "store")
	}
	if opts.Queue == nil {
		missing = append(missing, "queue")
	}
	if len(missing) > 0 {
		return nil, errors.Newf("pipeline is missing: %s", strings.Join(missing, ", ")).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.KeyMode == "" {
		opts.KeyMode = detection.KeyModeDuration
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{opts: opts, now: now}, nil
}

// Run executes a cycle immediately and then one every interval until ctx is
// cancelled. Cycle errors are logged and retried on the next tick.
func (p *Pipeline) Run(ctx context.Context) error {
	log := GetLogger()
	log.Info("Pipeline started",
		logger.String("clip_dir", p.opts.Queue.Dir()),
		logger.Duration("interval", p.opts.Interval),
		logger.String("key_mode", string(p.opts.KeyMode)))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Pipeline stopped")
			return nil
		case <-timer.C:
		}
		if ctx.Err() != nil {
			log.Info("Pipeline stopped")
			return nil
		}

		result, err := p.RunCycle(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			log.Info("Cycle interrupted by shutdown", logger.String("cycle_id", result.ID))
		default:
			log.Error("Cycle abandoned, retrying next interval",
				logger.String("cycle_id", result.ID),
				logger.Error(err))
		}

		timer.Reset(p.opts.Interval)
	}
}

// RunCycle performs one pass over the pending clips. It returns an error
// when the config or prior cannot be obtained, when the queue cannot be
// listed or when ctx is cancelled between clips. Per-clip failures are
// counted in the result and leave the clip pending.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	result := CycleResult{ID: uuid.NewString()}
	log := GetLogger().With(logger.String("cycle_id", result.ID))

	err := p.runCycle(ctx, log, &result)
	result.Duration = time.Since(start)
	p.opts.Metrics.RecordCycle(result.Duration, err)

	if err == nil && result.Pending > 0 {
		log.Info("Cycle completed",
			logger.Int("pending", result.Pending),
			logger.Int("processed", result.Processed),
			logger.Int("failed", result.Failed),
			logger.Int("rejected", result.Rejected),
			logger.Int("detections_saved", result.Saved),
			logger.Duration("duration", result.Duration))
	}
	return result, err
}

func (p *Pipeline) runCycle(ctx context.Context, log logger.Logger, result *CycleResult) error {
	now := p.now()

	pcfg, err := p.opts.Config.FetchConfig(ctx)
	if err != nil {
		return err
	}
	cfg, err := pcfg.Normalize()
	if err != nil {
		return err
	}

	prior, err := p.prior(ctx, log, cfg, now)
	if err != nil {
		return err
	}

	clips, err := p.opts.Queue.Pending(ctx)
	if err != nil {
		return err
	}
	result.Pending = len(clips)
	p.opts.Metrics.SetPending(len(clips))

	var saved []detection.Detection
	for _, clip := range clips {
		if err := ctx.Err(); err != nil {
			result.Saved = len(saved)
			p.afterCycle(ctx, log, cfg, saved)
			return err
		}
		// a started clip runs to completion even during shutdown
		dets, outcome := p.processClip(context.WithoutCancel(ctx), log, clip, prior, cfg, result)
		p.opts.Metrics.RecordClip(outcome)
		switch outcome {
		case metrics.ClipProcessed:
			result.Processed++
			saved = append(saved, dets...)
		case metrics.ClipRejected:
			result.Rejected++
		default:
			result.Failed++
		}
	}

	result.Saved = len(saved)
	p.afterCycle(ctx, log, cfg, saved)
	return nil
}

// prior returns nil when no prior can be computed for the cycle, which
// tells Build to skip the location check.
func (p *Pipeline) prior(ctx context.Context, log logger.Logger, cfg detection.Config, now time.Time) (birdnet.PriorMap, error) {
	if cfg.Location == nil {
		log.Info("No location configured, location check skipped")
		return nil, nil
	}
	if p.opts.Prior == nil {
		log.Info("No range model available, location check skipped")
		return nil, nil
	}
	return p.opts.Prior.ForLocation(ctx, cfg.Location, now)
}

// processClip classifies, builds and stores one clip. The returned outcome
// is one of the metrics clip labels.
func (p *Pipeline) processClip(ctx context.Context, log logger.Logger, pending PendingClip, prior birdnet.PriorMap, cfg detection.Config, result *CycleResult) ([]detection.Detection, string) {
	clipLog := log.With(logger.String("clip", pending.Name))

	clip, err := detection.ParseClipKey(pending.Name, p.opts.KeyMode)
	if err != nil {
		clipLog.Warn("Skipping clip with malformed key", logger.Error(err))
		if rejectErr := p.opts.Queue.Reject(pending); rejectErr != nil {
			clipLog.Error("Failed to move clip to reject directory", logger.Error(rejectErr))
		}
		return nil, metrics.ClipRejected
	}

	classifyStart := time.Now()
	raw, err := p.opts.Classifier.Analyze(ctx, pending.Path, cfg.MinAudioConfidence)
	p.opts.Metrics.ObserveClassify(time.Since(classifyStart))
	if err != nil {
		clipLog.Error("Classification failed, clip stays pending", logger.Error(err))
		return nil, metrics.ClipFailed
	}

	dets, stats := detection.Build(clip, raw, prior, cfg, p.now())
	if stats.MalformedLabels > 0 {
		result.MalformedLabels += stats.MalformedLabels
		p.opts.Metrics.AddMalformedLabels(stats.MalformedLabels)
		clipLog.Warn("Skipped malformed labels", logger.Int("count", stats.MalformedLabels))
	}

	if err := p.opts.Store.SaveDetections(ctx, dets); err != nil {
		clipLog.Error("Saving detections failed, clip stays pending",
			logger.Int("detections", len(dets)),
			logger.Error(err))
		return nil, metrics.ClipFailed
	}
	p.opts.Metrics.AddDetectionsSaved(len(dets))

	if err := p.opts.Queue.Remove(pending); err != nil {
		// detections are stored; a clip that cannot be removed would be
		// stored again next cycle
		clipLog.Error("Failed to remove processed clip", logger.Error(err))
	}

	clipLog.Debug("Clip processed",
		logger.Int("candidates", stats.Candidates),
		logger.Int("admitted", stats.Admitted),
		logger.Duration("classify_duration", time.Since(classifyStart)))
	return dets, metrics.ClipProcessed
}

// afterCycle runs the optional integrations. Their failures never fail the
// cycle.
func (p *Pipeline) afterCycle(ctx context.Context, log logger.Logger, cfg detection.Config, saved []detection.Detection) {
	ctx = context.WithoutCancel(ctx)

	if len(saved) > 0 {
		if p.opts.Publisher != nil {
			if err := p.opts.Publisher.PublishDetections(ctx, saved); err != nil {
				log.Warn("Publishing detections failed", logger.Error(err))
			}
		}
		if p.opts.Notifier != nil {
			if err := p.opts.Notifier.Check(ctx, cfg); err != nil {
				log.Warn("Observation notification failed", logger.Error(err))
			}
		}
	}

	if p.opts.Heartbeat != nil {
		if err := p.opts.Heartbeat.Beat(ctx); err != nil {
			log.Warn("Analyzer heartbeat failed", logger.Error(err))
		}
	}
}
