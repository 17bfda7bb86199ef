package birdnet

import (
	"context"
	"fmt"
	"math"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
	"github.com/tphakala/birdnet-scout/internal/myaudio"
)

// Predict runs one 3 second window through the classifier and returns the
// sigmoid confidence for every label, in label order.
func (bn *BirdNET) Predict(chunk []float32) ([]float32, error) {
	bn.mu.Lock()
	defer bn.mu.Unlock()

	if bn.interpreter == nil {
		return nil, errors.Newf("classifier is closed").
			Component("birdnet").
			Category(errors.CategoryAudioAnalysis).
			Build()
	}

	input := bn.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	copy(input.Float32s(), chunk)

	if status := bn.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	predictions := extractPredictions(bn.interpreter.GetOutputTensor(0))
	return applySigmoidToPredictions(predictions, bn.sensitivity), nil
}

// Analyze decodes a clip and classifies each window. Only labels scoring at
// least minConfidence are kept in the returned intervals.
func (bn *BirdNET) Analyze(ctx context.Context, path string, minConfidence float64) ([]detection.RawInterval, error) {
	return analyzeFile(ctx, path, bn.overlap, minConfidence, bn.Labels, bn.Predict)
}

type predictFunc func(chunk []float32) ([]float32, error)

func analyzeFile(ctx context.Context, path string, overlap, minConfidence float64, labels []string, predict predictFunc) ([]detection.RawInterval, error) {
	start := time.Now()
	var intervals []detection.RawInterval

	err := myaudio.ReadAudioFile(path, overlap, func(chunk []float32, offset float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		confidence, err := predict(chunk)
		if err != nil {
			return fmt.Errorf("prediction failed at %.1fs: %w", offset, err)
		}

		scores, err := pairLabelsAndConfidence(labels, confidence, minConfidence)
		if err != nil {
			return err
		}

		intervals = append(intervals, detection.RawInterval{
			Start:  offset,
			End:    offset + myaudio.ChunkSeconds,
			Scores: scores,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryAudioAnalysis).
			Context("operation", "analyze_clip").
			Timing("analyze", time.Since(start)).
			Build()
	}

	GetLogger().Debug("clip analyzed",
		logger.String("path", path),
		logger.Int("intervals", len(intervals)),
		logger.Duration("duration", time.Since(start)))

	return intervals, nil
}

// customSigmoid applies a sigmoid with sensitivity adjustment.
func customSigmoid(x, sensitivity float64) float64 {
	return 1.0 / (1.0 + math.Exp(-sensitivity*x))
}

func extractPredictions(tensor *tflite.Tensor) []float32 {
	predictions := make([]float32, tensor.Dim(tensor.NumDims()-1))
	copy(predictions, tensor.Float32s())
	return predictions
}

func applySigmoidToPredictions(predictions []float32, sensitivity float64) []float32 {
	confidence := make([]float32, len(predictions))
	for i, pred := range predictions {
		confidence[i] = float32(customSigmoid(float64(pred), sensitivity))
	}
	return confidence
}

// pairLabelsAndConfidence maps labels to confidences at or above min.
func pairLabelsAndConfidence(labels []string, confidence []float32, minConfidence float64) (map[string]float64, error) {
	if len(labels) != len(confidence) {
		return nil, fmt.Errorf("mismatched labels and predictions lengths: %d vs %d", len(labels), len(confidence))
	}

	scores := make(map[string]float64)
	for i, label := range labels {
		if c := float64(confidence[i]); c >= minConfidence {
			scores[label] = c
		}
	}
	return scores, nil
}
