package myaudio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/birdnet-scout/internal/errors"
)

const (
	// wavHeaderSize is the canonical RIFF/WAVE header length
	wavHeaderSize = 44
	// audioHeaderSize is how much is read for signature detection
	audioHeaderSize = 12
)

// Sentinel errors for clip readiness checks
var (
	ErrAudioFileEmpty    = errors.NewStd("audio file is empty")
	ErrAudioFileTooSmall = errors.NewStd("audio file is too small to be valid")
	ErrAudioFileInvalid  = errors.NewStd("audio file format is invalid")
)

// QuickValidate checks that a clip has a complete header for its extension.
// It reads only the first bytes and never decodes samples.
func QuickValidate(path string) error {
	file, err := os.Open(path) //nolint:gosec // path comes from directory listing
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return ErrAudioFileEmpty
	}

	header := make([]byte, audioHeaderSize)
	if _, err := io.ReadFull(file, header); err != nil {
		return fmt.Errorf("%w: %d bytes", ErrAudioFileTooSmall, info.Size())
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		if !bytes.HasPrefix(header, []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
			return fmt.Errorf("%w: missing RIFF/WAVE signature", ErrAudioFileInvalid)
		}
		if info.Size() < wavHeaderSize {
			return fmt.Errorf("%w: %d bytes", ErrAudioFileTooSmall, info.Size())
		}
	case ".flac":
		if !bytes.HasPrefix(header, []byte("fLaC")) {
			return fmt.Errorf("%w: missing fLaC signature", ErrAudioFileInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported extension", ErrAudioFileInvalid)
	}

	return nil
}
