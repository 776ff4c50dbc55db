package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long to wait after a change before re-reading, so editors
// that write in several steps are seen once.
const settle = 150 * time.Millisecond

// untilModified returns a context that is canceled when one of the scripts
// is written, created, removed or renamed. The directories holding the
// scripts are watched rather than the files, so an editor that saves by
// renaming a temporary file over the script is still seen.
func untilModified(ctx context.Context, scripts ...string) (context.Context, func(), error) {
	targets := map[string]bool{}
	dirs := map[string]bool{}
	for _, f := range scripts {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, nil, err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, nil, err
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				if abs, err := filepath.Abs(event.Name); err != nil || !targets[abs] {
					continue
				}
				cancel(fmt.Errorf("%s is updated (%s)", event.Name, event.Op))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(err)
			}
		}
	}()
	return cctx, func() { cancel(nil) }, nil
}

// watch runs partition once, then again every time a script changes, until
// ctx is done.
func watch(ctx context.Context, logger *slog.Logger, scripts []string, partition func(context.Context) error) error {
	for {
		if err := partition(ctx); err != nil {
			logger.ErrorContext(ctx, "partition failed", slog.Any("error", err))
		}

		wctx, cancel, err := untilModified(ctx, scripts...)
		if err != nil {
			return err
		}
		<-wctx.Done()
		cause := context.Cause(wctx)
		cancel()

		if ctx.Err() != nil {
			return nil
		}
		if cause != nil && !errors.Is(cause, context.Canceled) {
			logger.InfoContext(ctx, "script changed", slog.String("reason", cause.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(settle):
		}
	}
}
