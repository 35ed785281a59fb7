package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ronalddlopez/housecat/internal/domain"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// WatchSuites reloads the suite file into registry whenever it is written
// or recreated, then calls onReload with the new suites. It blocks until
// ctx is done. The parent directory is watched so editors that replace the
// file are handled.
func WatchSuites(ctx context.Context, path string, registry *Registry, debounce time.Duration, logger *zap.Logger, onReload func([]domain.TestSuite)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	logger.Info("watching suites file", zap.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("suites watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			suites, err := LoadSuites(abs, logger)
			if err != nil {
				logger.Error("failed to reload suites", zap.Error(err))
				continue
			}
			registry.Replace(suites)
			logger.Info("suites reloaded", zap.Int("count", len(suites)))
			if onReload != nil {
				onReload(suites)
			}
		}
	}
}
