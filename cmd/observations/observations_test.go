package observations

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-scout/internal/aggregation"
	"github.com/tphakala/birdnet-scout/internal/detection"
)

func robinDay() aggregation.Summary {
	start := time.Date(2023, 11, 15, 8, 0, 0, 0, time.UTC)
	records := make([]detection.Detection, 0, 2)
	for i := range 2 {
		records = append(records, detection.Detection{
			RecordingStart:  start.Add(time.Duration(i) * time.Minute),
			RecordingEnd:    start.Add(time.Duration(i+1) * time.Minute),
			Taxon:           detection.Taxon{Scientific: "Turdus migratorius", Common: "American Robin"},
			AudioConfidence: 0.88,
		})
	}
	return aggregation.Summarize(records, 2, time.UTC)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, robinDay(), 1))

	out := buf.String()
	assert.Contains(t, out, "2023-11-15")
	assert.Contains(t, out, "American Robin")
	assert.Contains(t, out, "2 detections")
	assert.Contains(t, out, "88%")
	assert.Contains(t, out, "1 species discovered")
}

func TestPrintSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, aggregation.Summarize(nil, 2, nil), 0))
	assert.Equal(t, "No confirmed observations\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, robinDay(), 1))

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Contains(t, out, "dates")
	assert.Contains(t, out, "observations")
	assert.JSONEq(t, "1", string(out["total_discovered"]))
}
