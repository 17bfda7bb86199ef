package aggregation

import (
	"fmt"
	"math"
	"strings"
)

const guideBaseURL = "https://www.allaboutbirds.org/guide/"

var slugReplacer = strings.NewReplacer("'", "", " ", "_")

// Link returns the All About Birds guide URL for a common name.
func Link(common string) string {
	return guideBaseURL + slugReplacer.Replace(common)
}

// Percent formats a [0,1] confidence as a whole percentage, e.g. "87%".
func Percent(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(v*100)))
}
