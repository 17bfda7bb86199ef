package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	logBufferSize = 32 * 1024

	// DefaultFlushInterval is how often buffered lines reach the file.
	DefaultFlushInterval = 5 * time.Second
)

// BufferedFileWriter appends to a log file through a buffer that is flushed
// periodically and on Close. Safe for concurrent use.
type BufferedFileWriter struct {
	mu       sync.Mutex
	file     *os.File
	buf      *bufio.Writer
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	closed   bool
}

// BufferedWriterOption configures a BufferedFileWriter.
type BufferedWriterOption func(*BufferedFileWriter)

// WithFlushInterval overrides DefaultFlushInterval. Zero flushes only on
// Flush and Close.
func WithFlushInterval(interval time.Duration) BufferedWriterOption {
	return func(w *BufferedFileWriter) { w.interval = interval }
}

// NewBufferedFileWriter opens path for appending.
func NewBufferedFileWriter(path string, opts ...BufferedWriterOption) (*BufferedFileWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // operator-configured path
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w := &BufferedFileWriter{
		file:     file,
		buf:      bufio.NewWriterSize(file, logBufferSize),
		interval: DefaultFlushInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.interval > 0 {
		go w.flushLoop()
	} else {
		close(w.done)
	}
	return w, nil
}

func (w *BufferedFileWriter) flushLoop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			// a failing flush shows up again on the next Write
			_ = w.Flush()
		}
	}
}

func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0, fmt.Errorf("log writer is closed")
	}
	return w.buf.Write(p)
}

// Flush hands buffered data to the OS without fsync.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Close stops the flush loop, then flushes, syncs and closes the file.
// Calling it again is a no-op.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	err := errors.Join(w.buf.Flush(), w.file.Sync(), w.file.Close())
	w.buf = nil
	w.file = nil
	return err
}

var _ io.WriteCloser = (*BufferedFileWriter)(nil)
