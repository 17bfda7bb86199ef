package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/birdnet-scout/internal/birdnet"
	"github.com/tphakala/birdnet-scout/internal/detection"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	robinLabel = "Turdus migratorius_American Robin"
	dogLabel   = "Dog_Dog"
)

var fixedNow = time.Date(2023, 11, 15, 8, 0, 0, 0, time.UTC)

type fakeConfig struct {
	cfg   detection.PercentConfig
	err   error
	calls atomic.Int32
}

func (f *fakeConfig) FetchConfig(context.Context) (detection.PercentConfig, error) {
	f.calls.Add(1)
	return f.cfg, f.err
}

type fakePrior struct {
	prior birdnet.PriorMap
	err   error
	calls atomic.Int32
}

func (f *fakePrior) ForLocation(_ context.Context, _ *detection.Location, _ time.Time) (birdnet.PriorMap, error) {
	f.calls.Add(1)
	return f.prior, f.err
}

type fakeClassifier struct {
	mu      sync.Mutex
	results map[string][]detection.RawInterval
	err     error
	calls   []string
	onCall  func()
}

func (f *fakeClassifier) Analyze(_ context.Context, path string, _ float64) ([]detection.RawInterval, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(path))
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results[filepath.Base(path)], nil
}

func (f *fakeClassifier) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type memStore struct {
	mu      sync.Mutex
	batches [][]detection.Detection
	err     error
}

func (m *memStore) SaveDetections(_ context.Context, dets []detection.Detection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, dets)
	return nil
}

func (m *memStore) all() []detection.Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []detection.Detection
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []detection.Detection
}

func (r *recordingPublisher) PublishDetections(_ context.Context, dets []detection.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, dets...)
	return nil
}

// writeClip writes a file with a bare RIFF/WAVE header.
func writeClip(t *testing.T, dir, name string) string {
	t.Helper()
	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	copy(header[8:], "WAVE")
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, header, 0o600))
	return path
}

func percentConfig(loc *detection.Location) detection.PercentConfig {
	return detection.PercentConfig{
		Location:              loc,
		MinAudioConfidence:    70,
		MinLocationConfidence: 1,
		MinSampleThreshold:    2,
		Timezone:              "US/Pacific",
	}
}

type harness struct {
	dir        string
	rejectDir  string
	config     *fakeConfig
	prior      *fakePrior
	classifier *fakeClassifier
	store      *memStore
	publisher  *recordingPublisher
	beats      atomic.Int32
	pipeline   *Pipeline
}

func newHarness(t *testing.T, loc *detection.Location) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		dir:        filepath.Join(root, "clips"),
		rejectDir:  filepath.Join(root, "rejected"),
		config:     &fakeConfig{cfg: percentConfig(loc)},
		prior:      &fakePrior{prior: birdnet.PriorMap{robinLabel: 0.5}},
		classifier: &fakeClassifier{results: map[string][]detection.RawInterval{}},
		store:      &memStore{},
		publisher:  &recordingPublisher{},
	}
	require.NoError(t, os.MkdirAll(h.dir, 0o755))

	p, err := NewPipeline(Options{
		Config:     h.config,
		Prior:      h.prior,
		Classifier: h.classifier,
		Store:      h.store,
		Queue:      NewDirectoryQueue(h.dir, h.rejectDir, nil, 0),
		Interval:   10 * time.Millisecond,
		Publisher:  h.publisher,
		Heartbeat: HeartbeatFunc(func(context.Context) error {
			h.beats.Add(1)
			return nil
		}),
		Now: func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func robinAndDog() []detection.RawInterval {
	return []detection.RawInterval{
		{Start: 3, End: 6, Scores: map[string]float64{robinLabel: 0.9, dogLabel: 0.95}},
	}
}

func TestRunCycleStoresAdmittedDetections(t *testing.T) {
	h := newHarness(t, &detection.Location{Lat: 45.5, Lon: -122.6})
	path := writeClip(t, h.dir, "1700000000_60.wav")
	h.classifier.results["1700000000_60.wav"] = robinAndDog()

	result, err := h.pipeline.RunCycle(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pending)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Saved)
	assert.NotEmpty(t, result.ID)

	saved := h.store.all()
	require.Len(t, saved, 1, "dog is blacklisted")
	d := saved[0]
	assert.Equal(t, "Turdus migratorius", d.Scientific)
	assert.Equal(t, "American Robin", d.Common)
	assert.True(t, d.RecordingStart.Equal(time.Unix(1700000000, 0)))
	assert.True(t, d.RecordingEnd.Equal(time.Unix(1700000060, 0)))
	assert.InDelta(t, 3, d.IntervalStart, 0)
	assert.InDelta(t, 6, d.IntervalEnd, 0)
	assert.InDelta(t, 0.9, d.AudioConfidence, 1e-9)
	assert.InDelta(t, 0.5, d.LocationConfidence, 1e-9)
	require.NotNil(t, d.Location)
	assert.True(t, d.CreatedAt.Equal(fixedNow))

	assert.NoFileExists(t, path, "processed clip is removed")
	assert.Equal(t, int32(1), h.prior.calls.Load())
	assert.Equal(t, int32(1), h.beats.Load())
	assert.Len(t, h.publisher.published, 1)
}

func TestRunCycleWithoutLocationSkipsPrior(t *testing.T) {
	h := newHarness(t, nil)
	writeClip(t, h.dir, "1700000000_60.wav")
	h.classifier.results["1700000000_60.wav"] = robinAndDog()

	_, err := h.pipeline.RunCycle(t.Context())
	require.NoError(t, err)

	saved := h.store.all()
	require.Len(t, saved, 1)
	assert.Nil(t, saved[0].Location)
	assert.Zero(t, saved[0].LocationConfidence)
	assert.Zero(t, h.prior.calls.Load())
}

func TestRunCycleWithoutRangeModelKeepsDetections(t *testing.T) {
	h := newHarness(t, &detection.Location{Lat: 45, Lon: -122})
	p, err := NewPipeline(Options{
		Config:     h.config,
		Classifier: h.classifier,
		Store:      h.store,
		Queue:      NewDirectoryQueue(h.dir, h.rejectDir, nil, 0),
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	path := writeClip(t, h.dir, "1700000000_60.wav")
	h.classifier.results["1700000000_60.wav"] = []detection.RawInterval{
		{Start: 0, End: 3, Scores: map[string]float64{robinLabel: 0.95}},
	}

	result, err := p.RunCycle(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved)

	saved := h.store.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "American Robin", saved[0].Common)
	assert.Zero(t, saved[0].LocationConfidence)
	require.NotNil(t, saved[0].Location)
	assert.Equal(t, detection.Location{Lat: 45, Lon: -122}, *saved[0].Location)
	assert.NoFileExists(t, path)
}

func TestRunCycleRejectsMalformedKeys(t *testing.T) {
	h := newHarness(t, nil)
	writeClip(t, h.dir, "garbage.wav")
	writeClip(t, h.dir, "1700000000_60.wav")

	result, err := h.pipeline.RunCycle(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []string{"1700000000_60.wav"}, h.classifier.called())
	assert.FileExists(t, filepath.Join(h.rejectDir, "garbage.wav"))
	assert.NoFileExists(t, filepath.Join(h.dir, "garbage.wav"))
}

func TestRunCycleFailuresLeaveClipPending(t *testing.T) {
	t.Run("classification", func(t *testing.T) {
		h := newHarness(t, nil)
		path := writeClip(t, h.dir, "1700000000_60.wav")
		h.classifier.err = fmt.Errorf("interpreter failed")

		result, err := h.pipeline.RunCycle(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
		assert.FileExists(t, path)
		assert.Empty(t, h.store.all())
	})

	t.Run("persistence", func(t *testing.T) {
		h := newHarness(t, nil)
		path := writeClip(t, h.dir, "1700000000_60.wav")
		h.classifier.results["1700000000_60.wav"] = robinAndDog()
		h.store.err = fmt.Errorf("sink unreachable")

		result, err := h.pipeline.RunCycle(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
		assert.Zero(t, result.Saved)
		assert.FileExists(t, path)
		assert.Empty(t, h.publisher.published)
	})
}

func TestRunCycleConfigFailureAbandonsCycle(t *testing.T) {
	h := newHarness(t, nil)
	path := writeClip(t, h.dir, "1700000000_60.wav")
	h.config.err = fmt.Errorf("connection refused")

	_, err := h.pipeline.RunCycle(t.Context())
	require.Error(t, err)
	assert.Empty(t, h.classifier.called())
	assert.FileExists(t, path)
	assert.Zero(t, h.beats.Load())
}

func TestRunCycleInvalidConfigAbandonsCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.config.cfg.MinAudioConfidence = 150

	_, err := h.pipeline.RunCycle(t.Context())
	require.Error(t, err)
}

func TestRunCyclePriorFailureAbandonsCycle(t *testing.T) {
	h := newHarness(t, &detection.Location{Lat: 1, Lon: 2})
	writeClip(t, h.dir, "1700000000_60.wav")
	h.prior.err = fmt.Errorf("range model failed")

	_, err := h.pipeline.RunCycle(t.Context())
	require.Error(t, err)
	assert.Empty(t, h.classifier.called())
}

func TestRunCycleFinishesCurrentClipOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	writeClip(t, h.dir, "1700000000_60.wav")
	second := writeClip(t, h.dir, "1700000060_60.wav")
	h.classifier.results["1700000000_60.wav"] = robinAndDog()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	h.classifier.onCall = cancel

	result, err := h.pipeline.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Processed)
	assert.Len(t, h.store.all(), 1, "the started clip is stored")
	assert.FileExists(t, second)
}

func TestRunStartsImmediatelyAndStops(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- h.pipeline.Run(ctx) }()

	require.Eventually(t, func() bool { return h.beats.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestNewPipelineRequiresDependencies(t *testing.T) {
	_, err := NewPipeline(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier")
}
