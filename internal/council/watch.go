package council

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed is returned when the catalog watcher cannot start.
var ErrWatcherFailed = errors.New("failed to initialize catalog watcher")

// WatchOption configures a CatalogWatcher.
type WatchOption func(*CatalogWatcher)

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger *zap.Logger) WatchOption {
	return func(w *CatalogWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithReloadHook calls fn after every reload attempt with its outcome.
func WithReloadHook(fn func(error)) WatchOption {
	return func(w *CatalogWatcher) {
		w.onReload = fn
	}
}

// CatalogWatcher reloads a catalog file into a Service whenever it changes
// on disk. A file that fails to parse is logged and the previous catalog
// stays in use.
type CatalogWatcher struct {
	path     string
	svc      *Service
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	onReload func(error)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// WatchCatalog starts watching path and swaps each successfully parsed
// version into svc. The parent directory is watched so editors that replace
// the file by rename are seen too. Call Stop to release the watcher.
func WatchCatalog(ctx context.Context, path string, svc *Service, opts ...WatchOption) (*CatalogWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: catalog path is empty", ErrWatcherFailed)
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: council service is required", ErrWatcherFailed)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, filepath.Dir(abs), err)
	}

	w := &CatalogWatcher{
		path:    abs,
		svc:     svc,
		watcher: fw,
		logger:  zap.NewNop(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.run(ctx)
	return w, nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *CatalogWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
	<-w.done
}

func (w *CatalogWatcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", zap.Error(err))
		}
	}
}

func (w *CatalogWatcher) reload() {
	catalog, err := LoadCatalog(w.path)
	if err != nil {
		w.logger.Warn("council catalog reload failed, keeping previous catalog",
			zap.String("path", w.path),
			zap.Error(err))
	} else {
		w.svc.SetCatalog(catalog)
		w.logger.Info("council catalog reloaded",
			zap.String("path", w.path),
			zap.Int("councils", len(catalog.councils)))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
