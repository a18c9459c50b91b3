// Package reload applies configuration changes to a running server, on file
// change or on SIGHUP.
package reload

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	ConfigPath string

	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration
}

func (c WatcherConfig) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Event reports that the watched file's content changed.
type Event struct {
	ConfigPath string
	Digest     [32]byte
}

// Watcher polls a file and emits an Event whenever its content digest
// changes. Touching the file without changing it emits nothing.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a watcher. Nothing happens until Start.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the change notifications. Changes that arrive while an
// event is still pending are coalesced into it.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for the poll goroutine. Safe to call more than
// once and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollInterval())
	defer ticker.Stop()

	last, _ := digest(w.cfg.ConfigPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			sum, ok := digest(w.cfg.ConfigPath)
			if !ok || sum == last {
				continue
			}
			last = sum
			select {
			case w.events <- Event{ConfigPath: w.cfg.ConfigPath, Digest: sum}:
			default:
			}
		}
	}
}

// digest hashes the file content. ok is false when the file is unreadable,
// which is common for a moment while editors replace it.
func digest(path string) (sum [32]byte, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sum, false
	}
	return blake3.Sum256(data), true
}
