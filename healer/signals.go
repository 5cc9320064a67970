package healer

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openhealer/healer/healer/internal/exec"
)

// ShutdownDrainDeadline bounds how long graceful shutdown waits for the
// Healer's event loop to return before returning anyway. Recovery spawns
// already running in their own goroutines are not waited for.
const ShutdownDrainDeadline = 5 * time.Second

// SignalDispatcher is the daemon's only signal consumer: SIGHUP triggers a
// reload, SIGTERM/SIGINT trigger graceful shutdown, and SIGCHLD reaps the
// zombies that accumulate because spawn (§4.7) never waits on its children.
//
// It also watches the config file's directory via fsnotify as a
// supplementary, non-authoritative reload trigger — useful for editors
// that rewrite-by-rename — but SIGHUP remains the contractual reload
// signal; a missed fsnotify event is never a bug on its own.
type SignalDispatcher struct {
	configPath string
	onReload   func() error
	onShutdown func(context.Context) error

	watcher *fsnotify.Watcher
}

// NewSignalDispatcher creates a dispatcher for configPath. The fsnotify
// watch is best-effort: if it can't be established (e.g. inotify instance
// limit reached), the dispatcher still runs on SIGHUP alone.
func NewSignalDispatcher(configPath string, onReload func() error, onShutdown func(context.Context) error) *SignalDispatcher {
	d := &SignalDispatcher{configPath: configPath, onReload: onReload, onShutdown: onShutdown}

	if w, err := fsnotify.NewWatcher(); err == nil {
		if err := w.Add(filepath.Dir(configPath)); err == nil {
			d.watcher = w
		} else {
			w.Close()
		}
	}

	return d
}

// Run blocks handling signals and fsnotify events until ctx is cancelled or
// a shutdown signal is handled, whichever comes first.
func (d *SignalDispatcher) Run(ctx context.Context) error {
	if d.watcher != nil {
		defer d.watcher.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT, syscall.SIGCHLD)
	defer signal.Stop(sigCh)

	var fsEvents <-chan fsnotify.Event
	if d.watcher != nil {
		fsEvents = d.watcher.Events
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				_ = d.onReload()

			case syscall.SIGTERM, syscall.SIGINT:
				shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownDrainDeadline)
				err := d.onShutdown(shutdownCtx)
				cancel()
				return err

			case syscall.SIGCHLD:
				exec.ReapChildren()
			}

		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(d.configPath) {
				continue
			}
			_ = d.onReload()
		}
	}
}
