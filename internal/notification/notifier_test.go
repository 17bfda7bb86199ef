package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/birdnet-scout/internal/aggregation"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

type recordingSender struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (s *recordingSender) Send(_, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("service unavailable")
	}
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type staticRecords struct {
	records []detection.Detection
	err     error
}

func (s *staticRecords) Detections(context.Context) ([]detection.Detection, error) {
	return s.records, s.err
}

func robin(at time.Time) detection.Detection {
	return detection.Detection{
		RecordingStart:  at,
		RecordingEnd:    at.Add(time.Minute),
		IntervalEnd:     3,
		Taxon:           detection.Taxon{Scientific: "Turdus migratorius", Common: "American Robin"},
		AudioConfidence: 0.9,
	}
}

func testConfig(threshold int) detection.Config {
	return detection.Config{MinSampleThreshold: threshold, Timezone: time.UTC}
}

func TestNotifierAnnouncesOnce(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := &staticRecords{records: []detection.Detection{robin(start), robin(start.Add(time.Minute))}}
	sender := &recordingSender{}

	registry := prometheus.NewRegistry()
	m, err := metrics.NewNotificationMetrics(registry)
	require.NoError(t, err)

	n := NewObservationNotifier(sender, records, "", time.Hour, m)

	require.NoError(t, n.Check(t.Context(), testConfig(2)))
	require.Equal(t, 1, sender.count())
	assert.Contains(t, sender.messages[0], "American Robin (Turdus migratorius) confirmed on 2024-05-01")
	assert.Contains(t, sender.messages[0], "90%")

	require.NoError(t, n.Check(t.Context(), testConfig(2)))
	assert.Equal(t, 1, sender.count(), "already announced")
	count, err := testutil.GatherAndCount(registry, "notification_suppressed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n.Flush()
	require.NoError(t, n.Check(t.Context(), testConfig(2)))
	assert.Equal(t, 2, sender.count())
}

func TestNotifierBelowThreshold(t *testing.T) {
	records := &staticRecords{records: []detection.Detection{robin(time.Now())}}
	sender := &recordingSender{}
	n := NewObservationNotifier(sender, records, "", time.Hour, nil)

	require.NoError(t, n.Check(t.Context(), testConfig(2)))
	assert.Zero(t, sender.count())
}

func TestNotifierRetriesFailedSends(t *testing.T) {
	records := &staticRecords{records: []detection.Detection{robin(time.Now())}}
	sender := &recordingSender{fail: true}
	n := NewObservationNotifier(sender, records, "", time.Hour, nil)

	require.Error(t, n.Check(t.Context(), testConfig(1)))

	sender.fail = false
	require.NoError(t, n.Check(t.Context(), testConfig(1)))
	assert.Equal(t, 1, sender.count())
}

func TestNotifierSourceError(t *testing.T) {
	n := NewObservationNotifier(&recordingSender{}, &staticRecords{err: fmt.Errorf("db down")}, "", 0, nil)
	require.Error(t, n.Check(t.Context(), testConfig(1)))
}

func TestFormatObservation(t *testing.T) {
	obs := &aggregation.Observation{
		Taxon:               detection.Taxon{Scientific: "Poecile atricapillus", Common: "Black-capped Chickadee"},
		SampleCount:         4,
		MeanAudioConfidence: 0.875,
		Date:                "2024-05-01",
		Link:                aggregation.Link("Black-capped Chickadee"),
	}
	assert.Equal(t,
		"Black-capped Chickadee (Poecile atricapillus) confirmed on 2024-05-01: 4 detections, 88% audio confidence\n"+
			"https://www.allaboutbirds.org/guide/Black-capped_Chickadee",
		FormatObservation(obs))
}

func TestNewShoutrrrSender(t *testing.T) {
	_, err := NewShoutrrrSender(nil, 0)
	require.Error(t, err)

	_, err = NewShoutrrrSender([]string{"nosuchservice://token@host"}, 0)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "token@")

	s, err := NewShoutrrrSender([]string{"logger://"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Send("title", "hello"))
}
