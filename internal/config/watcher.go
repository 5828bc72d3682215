package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is how often a [Watcher] looks at the file when no
// file system event arrives.
const DefaultPollInterval = 2 * time.Second

// settleDelay batches the burst of events an editor produces for one save.
const settleDelay = 100 * time.Millisecond

// Watcher follows a config file and reports what changed as a [ConfigDiff].
// It reacts to file system notifications on the file's directory, so saves
// that replace the file are seen too, and polls as a fallback where
// notifications are unavailable. Edits that leave every tracked field equal
// are not reported. An invalid file is logged and ignored until it becomes
// valid again.
type Watcher struct {
	path     string
	interval time.Duration
	notify   bool
	onChange func(ConfigDiff)

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
	sum     [sha256.Size]byte

	cancel context.CancelFunc
	done   chan struct{}
}

// fileStamp is the cheap pre-check done before reading the file.
type fileStamp struct {
	size  int64
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPollingOnly disables file system notifications.
func WithPollingOnly() WatcherOption {
	return func(w *Watcher) { w.notify = false }
}

// NewWatcher loads path and starts watching it. onChange runs on the
// watcher's goroutine; it may be nil.
func NewWatcher(path string, onChange func(ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultPollInterval,
		notify:   true,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.stamp, w.sum = cfg, stamp, sum

	var fw *fsnotify.Watcher
	if w.notify {
		if fw, err = w.subscribe(); err != nil {
			slog.Debug("config notifications unavailable, polling only", "path", path, "err", err)
			fw = nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx, fw)
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching and waits for an in-flight callback to return. It is
// safe to call more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}

	poll := time.NewTicker(w.interval)
	defer poll.Stop()
	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	name := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settle.Reset(settleDelay)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Debug("config notification error", "path", w.path, "err", err)
		case <-settle.C:
			w.reloadAndLog()
		case <-poll.C:
			w.reloadAndLog()
		}
	}
}

// subscribe watches the directory holding the file. Editors often save by
// writing a temporary file and renaming it over the original, which a watch
// on the file itself would miss.
func (w *Watcher) subscribe() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

func (w *Watcher) reloadAndLog() {
	if _, err := w.Reload(); err != nil {
		slog.Warn("config reload failed, keeping previous config", "path", w.path, "err", err)
	}
}

// Reload reads the file now and reports whether a tracked field changed.
// onChange is called before Reload returns when it did. On error the
// previous config stays current.
func (w *Watcher) Reload() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	unchanged := w.stamp == (fileStamp{size: info.Size(), mtime: info.ModTime()})
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	cfg, stamp, sum, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	w.stamp = stamp
	if sum == w.sum {
		w.mu.Unlock()
		return false, nil
	}
	d := Diff(w.current, cfg)
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	if d.Empty() {
		return false, nil
	}
	slog.Info("config changed", "path", w.path,
		"log_level", d.LogLevelChanged,
		"speech", d.SpeechChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(d)
	}
	return true, nil
}

// read parses and validates the file in one read so the hash and the
// config always describe the same bytes.
func (w *Watcher) read() (*Config, fileStamp, [sha256.Size]byte, error) {
	// Stat first: a write racing the read leaves a stale stamp, which only
	// causes another read on the next poll.
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, [sha256.Size]byte{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, [sha256.Size]byte{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fileStamp{}, [sha256.Size]byte{}, errors.New("config: file is empty")
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, [sha256.Size]byte{}, err
	}
	return cfg, fileStamp{size: info.Size(), mtime: info.ModTime()}, sha256.Sum256(data), nil
}
