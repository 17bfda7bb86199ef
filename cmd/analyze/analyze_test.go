package analyze

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-scout/internal/detection"
)

func writeSilence(t *testing.T, path string, rate int, seconds int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           make([]int, rate*seconds),
		Format:         &audio.Format{SampleRate: rate, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestClipForKeyedName(t *testing.T) {
	clip, err := clipFor(filepath.Join("clips", "1700000000_60.wav"), detection.KeyModeDuration)
	require.NoError(t, err)
	assert.True(t, clip.Start.Equal(time.Unix(1700000000, 0)))
	assert.Equal(t, time.Minute, clip.Duration())
}

func TestClipForUnkeyedNameUsesFileTimes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backyard.wav")
	writeSilence(t, path, 48000, 6)

	modTime := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, modTime, modTime))

	clip, err := clipFor(path, detection.KeyModeDuration)
	require.NoError(t, err)
	assert.Equal(t, "backyard.wav", clip.Name)
	assert.Equal(t, 6*time.Second, clip.Duration())
	assert.True(t, clip.End.Equal(modTime))
}

func TestClipForMissingFile(t *testing.T) {
	_, err := clipFor(filepath.Join(t.TempDir(), "missing.wav"), detection.KeyModeDuration)
	require.Error(t, err)
}

func sampleDetections() []detection.Detection {
	start := time.Unix(1700000000, 0).UTC()
	return []detection.Detection{{
		RecordingStart:     start,
		RecordingEnd:       start.Add(time.Minute),
		IntervalStart:      3,
		IntervalEnd:        6,
		Taxon:              detection.Taxon{Scientific: "Turdus migratorius", Common: "American Robin"},
		AudioConfidence:    0.874,
		LocationConfidence: 0.5,
	}}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, sampleDetections()))
	out := buf.String()
	assert.Contains(t, out, "American Robin")
	assert.Contains(t, out, "87%")
	assert.Contains(t, out, "50%")

	buf.Reset()
	require.NoError(t, printTable(&buf, nil))
	assert.Equal(t, "No detections\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, sampleDetections()))

	var payloads []detection.Payload
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payloads))
	require.Len(t, payloads, 1)
	assert.Equal(t, "3,6", payloads[0].Interval)
	assert.Nil(t, payloads[0].Location)
}
