package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/observability/metrics"
)

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	failTopic  bool
	messages   [][]byte
	connects   int
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTopic {
		return fmt.Errorf("broker rejected publish")
	}
	f.messages = append(f.messages, payload)
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {}

func testDetections() []detection.Detection {
	start := time.Unix(1700000000, 0).UTC()
	return []detection.Detection{
		{
			RecordingStart:     start,
			RecordingEnd:       start.Add(time.Minute),
			IntervalStart:      3,
			IntervalEnd:        6,
			Taxon:              detection.Taxon{Scientific: "Turdus migratorius", Common: "American Robin"},
			AudioConfidence:    0.9,
			LocationConfidence: 0.4,
			Location:           &detection.Location{Lat: 45.5, Lon: -122.6},
		},
		{
			RecordingStart: start,
			RecordingEnd:   start.Add(time.Minute),
			IntervalEnd:    3,
			Taxon:          detection.Taxon{Scientific: "Poecile atricapillus", Common: "Black-capped Chickadee"},
		},
	}
}

func TestPublisherSendsOneMessagePerDetection(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	pub := NewDetectionPublisher(fake, "birdnet/detections")

	require.NoError(t, pub.PublishDetections(t.Context(), testDetections()))
	assert.Equal(t, 1, fake.connects, "publisher connects lazily")
	require.Len(t, fake.messages, 2)

	var got detection.Payload
	require.NoError(t, json.Unmarshal(fake.messages[0], &got))
	assert.Equal(t, "Turdus migratorius", got.ScientificName)
	assert.Equal(t, "3,6", got.Interval)
	assert.Equal(t, "2023-11-14T22:13:20Z", got.RecordingStart)
	require.NotNil(t, got.Location)
	assert.Equal(t, "45.5,-122.6", *got.Location)
}

func TestPublisherEmptyBatch(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	require.NoError(t, NewDetectionPublisher(fake, "t").PublishDetections(t.Context(), nil))
	assert.Zero(t, fake.connects)
}

func TestPublisherErrors(t *testing.T) {
	t.Parallel()

	t.Run("connect failure", func(t *testing.T) {
		t.Parallel()
		fake := &fakeClient{connectErr: fmt.Errorf("refused")}
		err := NewDetectionPublisher(fake, "t").PublishDetections(t.Context(), testDetections())
		require.Error(t, err)
		assert.Empty(t, fake.messages)
	})

	t.Run("publish failure", func(t *testing.T) {
		t.Parallel()
		fake := &fakeClient{connected: true, failTopic: true}
		err := NewDetectionPublisher(fake, "t").PublishDetections(t.Context(), testDetections())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker rejected publish")
	})
}

func TestClientRejectsInvalidBroker(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{Broker: "not a url", ClientID: "test"}, nil)
	require.Error(t, c.Connect(t.Context()))
	assert.False(t, c.IsConnected())
}

func TestClientPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewMQTTMetrics(registry)
	require.NoError(t, err)

	c := NewClient(Config{Broker: "tcp://127.0.0.1:1883", ClientID: "test"}, m)
	err = c.Publish(t.Context(), "t", []byte("{}"))
	require.ErrorIs(t, err, ErrNotConnected)
	c.Disconnect()
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	s.Main.Name = "garden"
	s.MQTT = conf.MQTTSettings{Broker: "tcp://broker:1883", Topic: "birds", QoS: 1, Retain: true}

	cfg := ConfigFromSettings(s)
	assert.Equal(t, "birdnet-scout-garden", cfg.ClientID)
	assert.Equal(t, "birds", cfg.Topic)
	assert.Equal(t, byte(1), cfg.QoS)
	assert.True(t, cfg.Retain)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
}
