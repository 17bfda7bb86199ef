// Package birdnet runs the BirdNET acoustic classifier and range (meta)
// model through TensorFlow Lite.
package birdnet

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	tflite "github.com/tphakala/go-tflite"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// BirdNET wraps the acoustic classifier interpreter and its labels.
type BirdNET struct {
	Labels      []string
	interpreter *tflite.Interpreter
	sensitivity float64
	overlap     float64
	mu          sync.Mutex
}

// NewBirdNET loads the classifier model and labels named in cfg.
func NewBirdNET(cfg *conf.BirdNETConfig) (*BirdNET, error) {
	start := time.Now()

	labels, err := LoadLabels(cfg.LabelPath)
	if err != nil {
		return nil, err
	}

	threads := determineThreadCount(cfg.Threads)
	interpreter, err := newInterpreter(cfg.ModelPath, threads, "classifier")
	if err != nil {
		return nil, err
	}

	bn := &BirdNET{
		Labels:      labels,
		interpreter: interpreter,
		sensitivity: cfg.Sensitivity,
		overlap:     cfg.Overlap,
	}

	if err := bn.validateModelAndLabels(); err != nil {
		bn.Delete()
		return nil, err
	}

	GetLogger().Info("BirdNET model initialized",
		logger.String("model", filepath.Base(cfg.ModelPath)),
		logger.Int("labels", len(labels)),
		logger.Int("threads", threads),
		logger.Int("total_cpus", runtime.NumCPU()),
		logger.Duration("load_time", time.Since(start)))

	return bn, nil
}

// validateModelAndLabels checks that the output tensor has one value per label.
func (bn *BirdNET) validateModelAndLabels() error {
	output := bn.interpreter.GetOutputTensor(0)
	if output == nil {
		return errors.Newf("cannot get output tensor").
			Component("birdnet").
			Category(errors.CategoryModelInit).
			Build()
	}

	classes := output.Dim(output.NumDims() - 1)
	if classes != len(bn.Labels) {
		return errors.Newf("label count mismatch: model has %d classes, label file has %d", classes, len(bn.Labels)).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			Context("model_classes", classes).
			Context("labels", len(bn.Labels)).
			Build()
	}
	return nil
}

// Delete releases the interpreter.
func (bn *BirdNET) Delete() {
	if bn.interpreter != nil {
		bn.interpreter.Delete()
		bn.interpreter = nil
	}
}

// newInterpreter loads a tflite model file and allocates its tensors.
func newInterpreter(path string, threads int, name string) (*tflite.Interpreter, error) {
	start := time.Now()

	data, err := readModelFile(path)
	if err != nil {
		return nil, err
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite %s model", name).
			Component("birdnet").
			Category(errors.CategoryModelLoad).
			Context("model_path", path).
			Context("model_size_mb", len(data)/1024/1024).
			Build()
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("model", name), logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create %s interpreter", name).
			Component("birdnet").
			Category(errors.CategoryModelInit).
			Context("model_path", path).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		return nil, errors.Newf("tensor allocation failed for %s model: %v", name, status).
			Component("birdnet").
			Category(errors.CategoryModelInit).
			Context("model_path", path).
			Timing("model-allocate", time.Since(start)).
			Build()
	}

	// tflite keeps its own copy of the model bytes
	runtime.GC()

	return interpreter, nil
}

// readModelFile reads a model, expanding environment variables and ~.
func readModelFile(path string) ([]byte, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	if expanded == "" {
		return nil, errors.Newf("model path not configured").
			Component("birdnet").
			Category(errors.CategoryConfiguration).
			Build()
	}

	data, err := os.ReadFile(expanded) //nolint:gosec // model path comes from settings
	if err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryModelLoad).
			FileContext(expanded, 0).
			Build()
	}
	return data, nil
}

func expandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New(err).
				Component("birdnet").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		path = filepath.Join(home, path[2:])
	}
	return path, nil
}

// LoadLabels reads one "Scientific_Common" label per non-empty line.
func LoadLabels(path string) ([]string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(expanded) //nolint:gosec // label path comes from settings
	if err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			Context("label_path", expanded).
			Context("operation", "open").
			Build()
	}
	defer func() {
		if err := file.Close(); err != nil {
			GetLogger().Warn("Failed to close label file", logger.Error(err), logger.String("path", expanded))
		}
	}()

	labels, err := readLabels(file)
	if err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			Context("label_path", expanded).
			Context("operation", "parse").
			Build()
	}
	if len(labels) == 0 {
		return nil, errors.Newf("label file %s is empty", expanded).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	return labels, nil
}

func readLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	return labels, nil
}

// determineThreadCount resolves the configured thread count against the
// host. Zero means use every physical core, or every logical core when the
// CPU does not report physical cores.
func determineThreadCount(configured int) int {
	systemCPUs := runtime.NumCPU()

	if configured <= 0 {
		if cores := cpuid.CPU.PhysicalCores; cores > 0 {
			return min(cores, systemCPUs)
		}
		if cores := cpuid.CPU.LogicalCores; cores > 0 {
			return min(cores, systemCPUs)
		}
		return systemCPUs
	}

	return min(configured, systemCPUs)
}
