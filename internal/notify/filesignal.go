package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// FileSignal is the storage-event fallback transport: signals are exchanged
// between processes on the same machine as small JSON files in a shared
// directory. Publishing writes a file; sibling contexts watch the directory
// and consume files they did not write themselves.
type FileSignal struct {
	dir    string
	self   string // writer tag embedded in filenames, used to skip own signals
	logger *slog.Logger
}

// NewFileSignal creates the transport rooted at dir, creating it if needed.
func NewFileSignal(dir string, logger *slog.Logger) (*FileSignal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("notify: create signal dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSignal{dir: dir, self: uuid.NewString()[:8], logger: logger}, nil
}

// Publish writes sig as a signal file: tmp file, then rename, so watchers
// only ever see complete files.
func (f *FileSignal) Publish(sig Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("notify: encode signal: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".raido-tmp-*")
	if err != nil {
		return fmt.Errorf("notify: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		return fmt.Errorf("notify: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("notify: close temp: %w", err)
	}

	name := fmt.Sprintf("%s-%s-%d.signal", f.self, sig.Type, time.Now().UnixNano())
	if err := os.Rename(tmpName, filepath.Join(f.dir, name)); err != nil {
		return fmt.Errorf("notify: publish signal: %w", err)
	}
	success = true
	return nil
}

// Close is a no-op; the watch loop is owned by its context.
func (f *FileSignal) Close() error { return nil }

// Watch consumes signal files written by sibling processes until ctx is
// cancelled. Files are removed after delivery; stale files present at start
// are swept once so a crashed sibling cannot leave signals behind forever.
func (f *FileSignal) Watch(ctx context.Context, h Handler) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(f.dir); err != nil {
		return err
	}

	f.sweep(h)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f.consume(ev.Name, h)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Error("notify: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

func (f *FileSignal) sweep(h Handler) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			f.consume(filepath.Join(f.dir, e.Name()), h)
		}
	}
}

// consume reads, deletes, and delivers one signal file. Losing the race to a
// sibling consumer (file already gone) is fine: at-most-once delivery.
func (f *FileSignal) consume(path string, h Handler) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".signal") || strings.HasPrefix(name, f.self+"-") {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil {
		return
	}

	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		f.logger.Warn("notify: malformed signal file", slog.String("name", name))
		return
	}
	if h != nil {
		h(sig)
	}
}
