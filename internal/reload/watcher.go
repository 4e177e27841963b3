package reload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"lookupd/internal/logging"
	"lookupd/internal/lookup"
)

const defaultSettle = 100 * time.Millisecond

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Logger *slog.Logger

	// MinInterval is the minimum time between two reloads of the same
	// table. Zero means no limit.
	MinInterval time.Duration

	// Settle is how long to wait after a change before reloading, so a
	// file written in several chunks is read once it is complete.
	// Zero means defaultSettle; negative means no wait.
	Settle time.Duration
}

// Watcher reloads a table whenever its file is written or replaced.
// It watches the directories holding the table files, so tables updated
// by renaming a new file into place are picked up too.
type Watcher struct {
	reg         *lookup.Registry
	logger      *slog.Logger
	minInterval time.Duration
	settle      time.Duration
	ready       chan struct{}
}

// NewWatcher creates a watcher for the tables registered in reg when Run
// is called.
func NewWatcher(reg *lookup.Registry, cfg WatcherConfig) *Watcher {
	settle := cfg.Settle
	if settle == 0 {
		settle = defaultSettle
	}
	return &Watcher{
		reg:         reg,
		logger:      logging.Default(cfg.Logger).With("component", "reload"),
		minInterval: cfg.MinInterval,
		settle:      max(settle, 0),
		ready:       make(chan struct{}),
	}
}

// Ready is closed once Run has installed its watches.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// watched is the reload worker state for one table file.
type watched struct {
	ref     *lookup.Ref
	kick    chan struct{}
	limiter *rate.Limiter
}

// Run watches until ctx is done. It returns an error only if the watches
// cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	limit := rate.Inf
	if w.minInterval > 0 {
		limit = rate.Every(w.minInterval)
	}

	files := make(map[string]*watched)
	dirs := make(map[string]struct{})
	for _, ref := range w.reg.Refs() {
		p, err := filepath.Abs(ref.Filename())
		if err != nil {
			return fmt.Errorf("resolve %q: %w", ref.Filename(), err)
		}
		files[p] = &watched{
			ref:     ref,
			kick:    make(chan struct{}, 1),
			limiter: rate.NewLimiter(limit, 1),
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %q: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	for _, f := range files {
		wg.Go(func() { w.reloadLoop(ctx, f) })
	}

	w.logger.Info("watching lookup table files", "tables", len(files), "dirs", len(dirs))
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			p, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			if f, ok := files[p]; ok {
				select {
				case f.kick <- struct{}{}:
				default: // a reload is already pending
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context, f *watched) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.kick:
		}

		if w.settle > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.settle):
			}
			// Changes seen while settling are covered by this reload.
			select {
			case <-f.kick:
			default:
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return
		}
		w.logger.Debug("lookup table file changed", "table", f.ref.Name(), "file", f.ref.Filename())
		// Reload logs its own outcome.
		_ = f.ref.Reload(ctx)
	}
}
