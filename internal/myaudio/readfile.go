// Package myaudio decodes recorded clips into the 48 kHz mono float32
// windows the BirdNET classifier consumes.
package myaudio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/birdnet-scout/internal/errors"
)

const (
	// SampleRate required by the classifier
	SampleRate = 48000
	// ChunkSeconds is the classifier window length
	ChunkSeconds = 3.0
	// minTailSeconds is the shortest trailing window that is padded and kept
	minTailSeconds = 1.5
)

// AudioInfo describes a decoded file's format.
type AudioInfo struct {
	SampleRate   int
	TotalSamples int
	NumChannels  int
	BitDepth     int
}

// AudioChunkCallback receives each 3 second window and its offset in
// seconds from the start of the file.
type AudioChunkCallback func(chunk []float32, offset float64) error

// ReadAudioFile decodes a WAV or FLAC file and calls cb for every window.
// Windows advance by (3 - overlap) seconds.
func ReadAudioFile(path string, overlap float64, cb AudioChunkCallback) error {
	if overlap < 0 || overlap >= ChunkSeconds {
		return errors.Newf("overlap %.2f out of range [0, %.0f)", overlap, ChunkSeconds).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Build()
	}

	file, err := os.Open(path) //nolint:gosec // path comes from the clip queue
	if err != nil {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Context("operation", "open_clip").
			Build()
	}
	defer file.Close()

	c := newChunker(overlap, cb)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		err = readWAV(file, c)
	case ".flac":
		err = readFLAC(file, c)
	default:
		return errors.Newf("unsupported audio format %q", ext).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		return err
	}

	return c.flush()
}

// ReadChunks collects every window of a file.
func ReadChunks(path string, overlap float64) ([][]float32, error) {
	var chunks [][]float32
	err := ReadAudioFile(path, overlap, func(chunk []float32, _ float64) error {
		chunks = append(chunks, chunk)
		return nil
	})
	return chunks, err
}

// GetAudioInfo reads format information without decoding samples.
func GetAudioInfo(path string) (AudioInfo, error) {
	file, err := os.Open(path) //nolint:gosec // path comes from the clip queue
	if err != nil {
		return AudioInfo{}, err
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return readWAVInfo(file)
	case ".flac":
		return readFLACInfo(file)
	default:
		return AudioInfo{}, fmt.Errorf("unsupported audio format %q", ext)
	}
}

// getAudioDivisor returns the scale that maps integer PCM to [-1, 1).
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported audio bit depth %d", bitDepth).
			Component("myaudio").
			Category(errors.CategoryAudio).
			Build()
	}
}

// chunker slices a stream of 48 kHz samples into overlapping windows.
type chunker struct {
	size    int
	step    int
	minTail int
	stepSec float64
	index   int
	current []float32
	cb      AudioChunkCallback
}

func newChunker(overlap float64, cb AudioChunkCallback) *chunker {
	return &chunker{
		size:    int(ChunkSeconds * SampleRate),
		step:    int((ChunkSeconds - overlap) * SampleRate),
		minTail: int(minTailSeconds * SampleRate),
		stepSec: ChunkSeconds - overlap,
		cb:      cb,
	}
}

func (c *chunker) push(samples []float32) error {
	c.current = append(c.current, samples...)
	for len(c.current) >= c.size {
		chunk := make([]float32, c.size)
		copy(chunk, c.current[:c.size])
		if err := c.emit(chunk); err != nil {
			return err
		}
		c.current = c.current[c.step:]
	}
	return nil
}

// flush emits the trailing partial window, zero padded, if it holds unseen
// samples and is long enough.
func (c *chunker) flush() error {
	if len(c.current) < c.minTail || (c.index > 0 && len(c.current) <= c.size-c.step) {
		return nil
	}
	chunk := make([]float32, c.size)
	copy(chunk, c.current)
	c.current = nil
	return c.emit(chunk)
}

func (c *chunker) emit(chunk []float32) error {
	offset := float64(c.index) * c.stepSec
	c.index++
	return c.cb(chunk, offset)
}
