package myaudio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/flac"

	"github.com/tphakala/birdnet-scout/internal/errors"
)

func readFLACInfo(file *os.File) (AudioInfo, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return AudioInfo{}, err
	}

	return AudioInfo{
		SampleRate:   decoder.SampleRate,
		TotalSamples: int(decoder.TotalSamples),
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
	}, nil
}

// readFLAC decodes frames of interleaved little-endian PCM, keeping the
// first channel.
func readFLAC(file *os.File, c *chunker) error {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudio).
			Context("operation", "open_flac").
			Build()
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return err
	}

	bytesPerSample := decoder.BitsPerSample / 8
	stride := bytesPerSample * max(decoder.NChannels, 1)

	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.New(err).
				Component("myaudio").
				Category(errors.CategoryAudio).
				Context("operation", "decode_flac").
				Build()
		}

		samples := make([]float32, 0, len(frame)/stride)
		for i := 0; i+bytesPerSample <= len(frame); i += stride {
			samples = append(samples, float32(decodeSample(frame[i:], decoder.BitsPerSample))/divisor)
		}

		if decoder.SampleRate != SampleRate {
			samples, err = ResampleAudio(samples, decoder.SampleRate, SampleRate)
			if err != nil {
				return fmt.Errorf("error resampling audio: %w", err)
			}
		}

		if err := c.push(samples); err != nil {
			return err
		}
	}
}

// decodeSample reads one signed little-endian sample.
func decodeSample(b []byte, bitDepth int) int32 {
	switch bitDepth {
	case 16:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		return v << 8 >> 8
	case 32:
		return int32(binary.LittleEndian.Uint32(b))
	default:
		return 0
	}
}
