package aggregation

import (
	"github.com/tphakala/birdnet-scout/internal/detection"
)

// Discovered counts distinct scientific names whose total sample count
// across all dates and locations meets threshold.
func Discovered(records []detection.Detection, threshold int) int {
	counts := make(map[string]int)
	for i := range records {
		counts[records[i].Scientific]++
	}

	n := 0
	for _, c := range counts {
		if c >= threshold {
			n++
		}
	}
	return n
}
