package rangefilter

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-scout/internal/birdnet"
)

func TestResolveWeek(t *testing.T) {
	now := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	week, err := resolveWeek("", 0, now)
	require.NoError(t, err)
	assert.Equal(t, 1, week)

	week, err = resolveWeek("2023-12-31", 0, now)
	require.NoError(t, err)
	assert.Equal(t, 52, week)

	week, err = resolveWeek("2023-12-31", 10, now)
	require.NoError(t, err)
	assert.Equal(t, 10, week, "an explicit week wins")

	_, err = resolveWeek("", 54, now)
	require.Error(t, err)

	_, err = resolveWeek("31.12.2023", 0, now)
	require.Error(t, err)
}

func TestPrintPriorOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPrior(&buf, birdnet.PriorMap{
		"Corvus corax_Common Raven":         0.4,
		"Turdus migratorius_American Robin": 0.9,
		"Cyanocitta cristata_Blue Jay":      0.4,
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "American Robin")
	assert.Contains(t, lines[2], "Common Raven", "ties sort by label")
	assert.Contains(t, lines[3], "Blue Jay")
}
