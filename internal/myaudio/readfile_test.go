package myaudio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestWAV writes a 16-bit PCM file where every channel holds the
// given constant per channel index.
func writeTestWAV(t *testing.T, dir, name string, rate int, seconds float64, channelValues ...int) string {
	t.Helper()

	if len(channelValues) == 0 {
		channelValues = []int{1000}
	}
	channels := len(channelValues)
	frames := int(seconds * float64(rate))

	data := make([]int, frames*channels)
	for i := range frames {
		for ch, v := range channelValues {
			data[i*channels+ch] = v
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	return path
}

func collectOffsets(t *testing.T, path string, overlap float64) (offsets []float64, chunks [][]float32) {
	t.Helper()
	err := ReadAudioFile(path, overlap, func(chunk []float32, offset float64) error {
		offsets = append(offsets, offset)
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	return offsets, chunks
}

func TestReadAudioFileChunking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seconds float64
		overlap float64
		offsets []float64
	}{
		{"exact multiple", 9, 0, []float64{0, 3, 6}},
		{"short tail dropped", 10, 0, []float64{0, 3, 6}},
		{"long tail padded", 11, 0, []float64{0, 3, 6, 9}},
		{"overlapping windows", 6, 1.5, []float64{0, 1.5, 3}},
		{"clip shorter than a window", 2, 0, []float64{0}},
		{"clip below minimum", 1, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeTestWAV(t, t.TempDir(), "clip.wav", SampleRate, tt.seconds)

			offsets, chunks := collectOffsets(t, path, tt.overlap)
			assert.Equal(t, tt.offsets, offsets)
			for _, c := range chunks {
				assert.Len(t, c, SampleRate*3)
			}
		})
	}
}

func TestReadAudioFilePadsTailWithZeros(t *testing.T) {
	t.Parallel()
	path := writeTestWAV(t, t.TempDir(), "clip.wav", SampleRate, 5, 16384)

	_, chunks := collectOffsets(t, path, 0)
	require.Len(t, chunks, 2)

	tail := chunks[1]
	assert.InDelta(t, 0.5, tail[0], 1e-6)
	assert.InDelta(t, 0.5, tail[2*SampleRate-1], 1e-6)
	assert.Zero(t, tail[2*SampleRate])
	assert.Zero(t, tail[len(tail)-1])
}

func TestReadAudioFileKeepsFirstChannel(t *testing.T) {
	t.Parallel()
	path := writeTestWAV(t, t.TempDir(), "stereo.wav", SampleRate, 3, 16384, -16384)

	_, chunks := collectOffsets(t, path, 0)
	require.Len(t, chunks, 1)
	assert.InDelta(t, 0.5, chunks[0][0], 1e-6)
	assert.InDelta(t, 0.5, chunks[0][SampleRate], 1e-6)
}

func TestReadAudioFileResamples(t *testing.T) {
	t.Parallel()
	path := writeTestWAV(t, t.TempDir(), "low.wav", 24000, 6, 8192)

	offsets, chunks := collectOffsets(t, path, 0)
	assert.Equal(t, []float64{0, 3}, offsets)
	assert.InDelta(t, 0.25, chunks[0][100], 1e-6)
}

func TestReadAudioFileRejectsBadInput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeTestWAV(t, dir, "clip.wav", SampleRate, 3)

	noop := func([]float32, float64) error { return nil }

	require.Error(t, ReadAudioFile(path, 3, noop), "overlap equal to window")
	require.Error(t, ReadAudioFile(path, -0.5, noop), "negative overlap")
	require.Error(t, ReadAudioFile(filepath.Join(dir, "missing.wav"), 0, noop))

	mp3 := filepath.Join(dir, "clip.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte("ID3"), 0o600))
	require.Error(t, ReadAudioFile(mp3, 0, noop))
}

func TestReadChunksStopsOnCallbackError(t *testing.T) {
	t.Parallel()
	path := writeTestWAV(t, t.TempDir(), "clip.wav", SampleRate, 9)

	calls := 0
	sentinel := os.ErrClosed
	err := ReadAudioFile(path, 0, func([]float32, float64) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestGetAudioInfo(t *testing.T) {
	t.Parallel()
	path := writeTestWAV(t, t.TempDir(), "clip.wav", 44100, 2, 1, 2)

	info, err := GetAudioInfo(path)
	require.NoError(t, err)
	assert.Equal(t, AudioInfo{SampleRate: 44100, TotalSamples: 88200, NumChannels: 2, BitDepth: 16}, info)
}

func TestResampleAudio(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1, 2, 3}
	out, err := ResampleAudio(in, 24000, 48000)
	require.NoError(t, err)
	require.Len(t, out, 8)
	assert.InDelta(t, 0.5, out[1], 1e-6)
	assert.InDelta(t, 3, out[7], 1e-6)

	same, err := ResampleAudio(in, 48000, 48000)
	require.NoError(t, err)
	assert.Equal(t, in, same)

	_, err = ResampleAudio(in, 0, 48000)
	require.Error(t, err)
}

func TestQuickValidate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	valid := writeTestWAV(t, dir, "ok.wav", SampleRate, 1)
	require.NoError(t, QuickValidate(valid))

	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o600))
		return p
	}

	assert.ErrorIs(t, QuickValidate(write("empty.wav", nil)), ErrAudioFileEmpty)
	assert.ErrorIs(t, QuickValidate(write("tiny.wav", []byte("RIFF"))), ErrAudioFileTooSmall)
	assert.ErrorIs(t, QuickValidate(write("header.wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "))), ErrAudioFileTooSmall)
	assert.ErrorIs(t, QuickValidate(write("junk.wav", []byte("this is not audio at all, just text"))), ErrAudioFileInvalid)
	assert.ErrorIs(t, QuickValidate(write("junk.flac", []byte("RIFF\x00\x00\x00\x00WAVE"))), ErrAudioFileInvalid)
	assert.NoError(t, QuickValidate(write("stub.flac", []byte("fLaC\x00\x00\x00\x22\x00\x00\x00\x00"))))
}
