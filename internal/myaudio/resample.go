package myaudio

import "fmt"

// ResampleAudio converts mono samples between rates with linear
// interpolation. Output length is round(len(in) * to / from).
func ResampleAudio(in []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if from == to || len(in) == 0 {
		return in, nil
	}

	outLen := (len(in)*to + from/2) / from
	out := make([]float32, outLen)
	ratio := float64(from) / float64(to)
	last := len(in) - 1

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}

	return out, nil
}
