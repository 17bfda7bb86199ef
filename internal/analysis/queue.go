package analysis

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
	"github.com/tphakala/birdnet-scout/internal/myaudio"
)

// temporary file suffixes used by recorders and copy tools
var tempSuffixes = []string{".tmp", ".part", ".partial", ".crdownload", "~"}

// PendingClip is a clip file waiting to be analyzed.
type PendingClip struct {
	Name string // base name, the clip key
	Path string
}

// DirectoryQueue is the pending clip work queue backed by a directory.
// Producers publish clips atomically by renaming them into the directory.
type DirectoryQueue struct {
	dir        string
	rejectDir  string
	extensions []string
	minAge     time.Duration
	now        func() time.Time
}

// NewDirectoryQueue returns a queue over dir. Extensions are matched case
// insensitively and default to .wav and .flac. An empty rejectDir leaves
// rejected clips in place.
func NewDirectoryQueue(dir, rejectDir string, extensions []string, minAge time.Duration) *DirectoryQueue {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = []string{".wav", ".flac"}
	}
	return &DirectoryQueue{
		dir:        dir,
		rejectDir:  rejectDir,
		extensions: exts,
		minAge:     minAge,
		now:        time.Now,
	}
}

// Dir returns the watched directory.
func (q *DirectoryQueue) Dir() string {
	return q.dir
}

// Pending lists the clips ready for analysis, sorted by name. Files still
// being written, hidden or temporary files, other extensions and files
// with an invalid audio header are skipped.
func (q *DirectoryQueue) Pending(ctx context.Context) ([]PendingClip, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "list_pending").
			Context("dir", q.dir).
			Build()
	}

	var clips []PendingClip
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !q.candidate(entry) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		if q.now().Sub(info.ModTime()) < q.minAge {
			continue
		}

		path := filepath.Join(q.dir, entry.Name())
		if err := myaudio.QuickValidate(path); err != nil {
			GetLogger().Debug("Skipping clip with invalid header",
				logger.String("clip", entry.Name()),
				logger.Error(err))
			continue
		}
		clips = append(clips, PendingClip{Name: entry.Name(), Path: path})
	}

	slices.SortFunc(clips, func(a, b PendingClip) int { return strings.Compare(a.Name, b.Name) })
	return clips, nil
}

// Count returns the number of candidate files without header checks.
func (q *DirectoryQueue) Count() (int, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if q.candidate(entry) {
			n++
		}
	}
	return n, nil
}

func (q *DirectoryQueue) candidate(entry fs.DirEntry) bool {
	if !entry.Type().IsRegular() {
		return false
	}
	name := entry.Name()
	if strings.HasPrefix(name, ".") {
		return false
	}
	lower := strings.ToLower(name)
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return slices.Contains(q.extensions, filepath.Ext(lower))
}

// Remove deletes a processed clip. A clip that is already gone is not an
// error.
func (q *DirectoryQueue) Remove(clip PendingClip) error {
	if err := os.Remove(clip.Path); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "remove_clip").
			Context("clip", clip.Name).
			Build()
	}
	return nil
}

// Reject moves a clip that can never be processed into the reject
// directory. Without a reject directory the clip stays where it is.
func (q *DirectoryQueue) Reject(clip PendingClip) error {
	if q.rejectDir == "" {
		return nil
	}
	if err := os.MkdirAll(q.rejectDir, 0o755); err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "create_reject_dir").
			Build()
	}
	if err := os.Rename(clip.Path, filepath.Join(q.rejectDir, clip.Name)); err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "reject_clip").
			Context("clip", clip.Name).
			Build()
	}
	return nil
}
