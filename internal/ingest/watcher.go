package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing files
	Debounce    time.Duration // coalesce rapid write/rename bursts per path
}

// StartWatcher emits paths accepted by accept when they are created, written
// or renamed under the roots. Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, accept func(string) bool, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var initial []string
	for _, root := range cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && accept(path) {
				initial = append(initial, path)
			}
			return nil
		})
		if err != nil {
			logger.Error("failed to add root directory", "root", root, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		var (
			mu      sync.Mutex
			timers  = map[string]*time.Timer{}
			pending sync.WaitGroup
		)
		defer func() {
			mu.Lock()
			for p, t := range timers {
				if t.Stop() {
					pending.Done()
				}
				delete(timers, p)
			}
			mu.Unlock()
			pending.Wait()
			if err := w.Close(); err != nil {
				logger.Warn("failed to close watcher", "error", err)
			}
			close(evCh)
			close(errCh)
		}()

		emit := func(p string) {
			select {
			case evCh <- p:
			case <-ctx.Done():
			}
		}
		for _, p := range initial {
			emit(p)
		}

		schedule := func(p string) {
			if cfg.Debounce <= 0 {
				emit(p)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if t, ok := timers[p]; ok && t.Stop() {
				pending.Done()
			}
			pending.Add(1)
			timers[p] = time.AfterFunc(cfg.Debounce, func() {
				defer pending.Done()
				mu.Lock()
				delete(timers, p)
				mu.Unlock()
				emit(p)
			})
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if st, err := os.Stat(e.Name); err == nil && st.IsDir() {
						if err := w.Add(e.Name); err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if accept(e.Name) && (e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Rename)) {
					schedule(e.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// Watch converts files as they appear until ctx is done.
func (b *Batch) Watch(ctx context.Context, cfg WatchConfig) error {
	events, errs, err := StartWatcher(ctx, cfg, b.Accepts, b.logger)
	if err != nil {
		return err
	}
	b.logger.Info("watching for files", "roots", cfg.Roots)
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			if _, err := os.Stat(path); err != nil {
				// renamed away or deleted before the debounce fired
				continue
			}
			if _, err := b.ConvertFile(ctx, path); err != nil {
				b.logger.Error("failed to convert file", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if ok {
				b.logger.Warn("watcher reported an error", "error", err)
			} else {
				errs = nil
			}
		}
	}
}
