package birdnet

import (
	"context"
	"fmt"
	"sync"

	tflite "github.com/tphakala/go-tflite"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/errors"
)

// rangeMinScore drops meta model outputs too small to matter
const rangeMinScore = 0.03

// RangeModel is the BirdNET meta model: it predicts which labels occur at
// a location in a given week.
type RangeModel struct {
	labels      []string
	interpreter *tflite.Interpreter
	mu          sync.Mutex
}

// NewRangeModel loads the meta model. It shares the classifier label list.
func NewRangeModel(cfg *conf.BirdNETConfig, labels []string) (*RangeModel, error) {
	// Meta model requires only one CPU.
	interpreter, err := newInterpreter(cfg.RangeFilter.ModelPath, 1, "range filter")
	if err != nil {
		return nil, err
	}

	output := interpreter.GetOutputTensor(0)
	if classes := output.Dim(output.NumDims() - 1); classes != len(labels) {
		interpreter.Delete()
		return nil, errors.Newf("range model has %d classes, label file has %d", classes, len(labels)).
			Component("birdnet").
			Category(errors.CategoryModelInit).
			Build()
	}

	return &RangeModel{labels: labels, interpreter: interpreter}, nil
}

// Predict implements RangePredictor.
func (m *RangeModel) Predict(ctx context.Context, lat, lon float64, week int) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter == nil {
		return nil, fmt.Errorf("range model is closed")
	}

	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}

	data := []float32{float32(lat), float32(lon), float32(week)}
	float32s := input.Float32s()
	if len(float32s) < len(data) {
		return nil, fmt.Errorf("input tensor does not have enough capacity")
	}
	copy(float32s, data)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("range model invoke failed: %v", status).
			Component("birdnet").
			Category(errors.CategoryProcessing).
			Context("week", week).
			Build()
	}

	return filterRangeScores(m.labels, extractPredictions(m.interpreter.GetOutputTensor(0))), nil
}

// Delete releases the interpreter.
func (m *RangeModel) Delete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
}

func filterRangeScores(labels []string, scores []float32) map[string]float64 {
	out := make(map[string]float64)
	for i, score := range scores {
		if i >= len(labels) {
			break
		}
		if score >= rangeMinScore {
			out[labels[i]] = float64(score)
		}
	}
	return out
}
