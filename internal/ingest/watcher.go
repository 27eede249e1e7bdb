// Package ingest discovers documents dropped into watched directories and
// submits them as jobs.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/docufill/constants"
)

type WatchConfig struct {
	Roots       []string // directories to watch (recursive)
	AllowedExts map[string]struct{}
	InitialScan bool          // if true, walk roots and emit existing files
	Debounce    time.Duration // coalesce rapid update/rename bursts
}

// watcher owns the fsnotify handle and the debounce bookkeeping.
type watcher struct {
	fsw     *fsnotify.Watcher
	cfg     WatchConfig
	logger  *slog.Logger
	paths   chan string
	errs    chan error
	pending map[string]struct{}
	timer   *time.Timer
}

// StartWatcher streams paths of newly arrived documents. The channels close
// when ctx is cancelled. Editors and scanners write files in bursts, so
// events are debounced per path before being emitted.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no watch roots provided")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = constants.AllowedExtensions
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	w := &watcher{
		fsw:     fsw,
		cfg:     cfg,
		logger:  logger,
		paths:   make(chan string, 256),
		errs:    make(chan error, 1),
		pending: map[string]struct{}{},
	}

	for _, root := range cfg.Roots {
		if err := w.addTree(root); err != nil {
			logger.Error("watch.add_root.error", "root", root, "error", err)
			_ = fsw.Close()
			return nil, nil, err
		}
	}

	go w.loop(ctx)
	return w.paths, w.errs, nil
}

// addTree registers every directory under root and, when configured, emits
// the files already sitting there.
func (w *watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if w.cfg.InitialScan && w.allowed(path) {
			w.emit(path)
		}
		return nil
	})
}

// loop owns all watcher state; the debounce timer fires back into the same
// select so the pending map never needs a lock.
func (w *watcher) loop(ctx context.Context) {
	defer close(w.paths)
	defer close(w.errs)
	defer w.fsw.Close() //nolint:errcheck

	w.timer = time.NewTimer(time.Hour)
	if !w.timer.Stop() {
		<-w.timer.C
	}
	defer w.timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.fsw.Events:
			w.handle(ev)
		case <-w.timer.C:
			w.flush()
		case err := <-w.fsw.Errors:
			w.logger.Error("watch.error", "error", err)
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		// A new directory joins the watch set; Add on a plain file is a
		// harmless no-op or error we ignore.
		_ = w.fsw.Add(ev.Name)
	}
	if !w.allowed(ev.Name) || !ev.Op.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
		return
	}

	w.pending[ev.Name] = struct{}{}
	if w.cfg.Debounce <= 0 {
		w.flush()
		return
	}
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(w.cfg.Debounce)
}

func (w *watcher) flush() {
	for p := range w.pending {
		w.emit(p)
		delete(w.pending, p)
	}
}

func (w *watcher) emit(path string) {
	select {
	case w.paths <- path:
	default:
		w.logger.Warn("watch.emit.dropped", "path", path)
	}
}

func (w *watcher) allowed(path string) bool {
	_, ok := w.cfg.AllowedExts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}
