package detection

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/tphakala/birdnet-scout/internal/errors"
)

// ErrMalformedClipKey is returned for clip names that do not follow
// "<start>_<n>.<ext>".
var ErrMalformedClipKey = errors.NewStd("malformed clip key")

// KeyMode selects how the second number in a clip key is read.
type KeyMode string

const (
	// KeyModeDuration reads "<start>_<duration>.<ext>".
	KeyModeDuration KeyMode = "duration"
	// KeyModeEnd reads "<start>_<end>.<ext>" with both values as epoch seconds.
	KeyModeEnd KeyMode = "end"
)

// ParseKeyMode accepts "duration", "end", or empty for the default.
func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(s) {
	case "", KeyModeDuration:
		return KeyModeDuration, nil
	case KeyModeEnd:
		return KeyModeEnd, nil
	default:
		return "", fmt.Errorf("unknown clip key mode %q, want %q or %q", s, KeyModeDuration, KeyModeEnd)
	}
}

var clipKeyPattern = regexp.MustCompile(`^(\d+)_(\d+)\.([A-Za-z0-9]+)$`)

// Clip is a parsed recording key.
type Clip struct {
	Name  string
	Start time.Time
	End   time.Time
	Ext   string
}

// Duration of the recording.
func (c Clip) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// ParseClipKey parses a clip file name (no directory) such as
// "1700000000_60.wav". Times are UTC.
func ParseClipKey(name string, mode KeyMode) (Clip, error) {
	m := clipKeyPattern.FindStringSubmatch(name)
	if m == nil {
		return Clip{}, malformedKey(name, "name does not match <start>_<n>.<ext>")
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Clip{}, malformedKey(name, "start out of range")
	}
	second, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Clip{}, malformedKey(name, "second field out of range")
	}

	clip := Clip{
		Name:  name,
		Start: time.Unix(start, 0).UTC(),
		Ext:   m[3],
	}

	switch mode {
	case KeyModeEnd:
		if second <= start {
			return Clip{}, malformedKey(name, "end not after start")
		}
		clip.End = time.Unix(second, 0).UTC()
	case KeyModeDuration, "":
		if second == 0 {
			return Clip{}, malformedKey(name, "zero duration")
		}
		if second > math.MaxInt64/int64(time.Second) {
			return Clip{}, malformedKey(name, "duration out of range")
		}
		clip.End = clip.Start.Add(time.Duration(second) * time.Second)
	default:
		return Clip{}, fmt.Errorf("unknown clip key mode %q", mode)
	}

	return clip, nil
}

func malformedKey(name, reason string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrMalformedClipKey, reason)).
		Component("detection").
		Category(errors.CategoryFileParsing).
		Context("clip", name).
		Build()
}
