package plansync

import (
	"context"
	"fmt"

	"github.com/cuemby/task-registry/pkg/log"
	"github.com/fsnotify/fsnotify"
)

// Watch runs SyncFromPlan(specName, planPath) once at startup and again
// every time planPath changes on disk, until ctx is cancelled. Results
// are delivered on the returned channel, which is closed once watching
// stops (ctx cancelled or the watcher closed). A sync that errors is still delivered; Watch does not stop
// watching because one sync failed.
func (s *Syncer) Watch(ctx context.Context, specName, planPath string) (<-chan SyncResult, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("plansync: creating watcher: %w", err)
	}
	if err := watcher.Add(planPath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("plansync: watching %s: %w", planPath, err)
	}

	results := make(chan SyncResult, 1)
	watchLog := log.WithSpecName(specName)

	go func() {
		defer close(results)
		defer watcher.Close()

		results <- s.SyncFromPlan(specName, planPath)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				results <- s.SyncFromPlan(specName, planPath)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				watchLog.Warn().Err(err).Msg("plan document watcher error")
			}
		}
	}()

	return results, nil
}
