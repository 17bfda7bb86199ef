package myaudio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/birdnet-scout/internal/errors"
)

// wavReadFrames is how many frames are pulled from the decoder per read
const wavReadFrames = 8 * SampleRate

func readWAVInfo(file *os.File) (AudioInfo, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return AudioInfo{}, fmt.Errorf("invalid WAV file format")
	}
	if decoder.BitDepth != 16 && decoder.BitDepth != 24 && decoder.BitDepth != 32 {
		return AudioInfo{}, fmt.Errorf("unsupported bit depth: %d", decoder.BitDepth)
	}
	if decoder.NumChans == 0 {
		return AudioInfo{}, fmt.Errorf("WAV file reports zero channels")
	}

	if err := decoder.FwdToPCM(); err != nil {
		return AudioInfo{}, fmt.Errorf("locating PCM data: %w", err)
	}

	bytesPerFrame := int64(decoder.BitDepth/8) * int64(decoder.NumChans)
	return AudioInfo{
		SampleRate:   int(decoder.SampleRate),
		TotalSamples: int(decoder.PCMLen() / bytesPerFrame),
		NumChannels:  int(decoder.NumChans),
		BitDepth:     int(decoder.BitDepth),
	}, nil
}

// readWAV decodes PCM, keeps the first channel, resamples to 48 kHz when
// needed and feeds the chunker.
func readWAV(file *os.File, c *chunker) error {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return errors.Newf("input is not a valid WAV audio file").
			Component("myaudio").
			Category(errors.CategoryAudio).
			Build()
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return err
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}
	sourceRate := int(decoder.SampleRate)

	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadFrames*channels),
		Format: &audio.Format{SampleRate: sourceRate, NumChannels: channels},
	}

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return errors.New(err).
				Component("myaudio").
				Category(errors.CategoryAudio).
				Context("operation", "decode_wav").
				Build()
		}
		if n == 0 {
			return nil
		}

		samples := make([]float32, 0, n/channels)
		for i := 0; i+channels <= n; i += channels {
			samples = append(samples, float32(buf.Data[i])/divisor)
		}

		if sourceRate != SampleRate {
			samples, err = ResampleAudio(samples, sourceRate, SampleRate)
			if err != nil {
				return fmt.Errorf("error resampling audio: %w", err)
			}
		}

		if err := c.push(samples); err != nil {
			return err
		}
	}
}
