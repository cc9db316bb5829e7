package eventstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/task-registry/pkg/log"
	"github.com/cuemby/task-registry/pkg/metrics"
	"github.com/cuemby/task-registry/pkg/types"
)

const eventFileName = "events.jsonl"

// Store is an append-only, per-spec log of TaskEvents. A store never
// rewrites or deletes an individual event; the only mutations it performs
// are appends (Record) and whole-file rotation (Rotate) or clearing
// (Clear).
type Store struct {
	eventsDir string
}

// New creates a Store rooted at eventsDir, creating the directory if it
// does not already exist.
func New(eventsDir string) (*Store, error) {
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return nil, fmt.Errorf("eventstore: creating events dir %s: %w", eventsDir, err)
	}
	return &Store{eventsDir: eventsDir}, nil
}

func (s *Store) specDir(specName string) string {
	return filepath.Join(s.eventsDir, specName)
}

func (s *Store) eventFile(specName string) string {
	return filepath.Join(s.specDir(specName), eventFileName)
}

// Record appends event to its spec's log, stamping Timestamp with the
// current time if the caller left it zero.
func (s *Store) Record(event types.TaskEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := os.MkdirAll(s.specDir(event.SpecName), 0o755); err != nil {
		return fmt.Errorf("eventstore: creating spec dir: %w", err)
	}

	line, err := event.ToJSONL()
	if err != nil {
		return fmt.Errorf("eventstore: encoding event: %w", err)
	}

	f, err := os.OpenFile(s.eventFile(event.SpecName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("eventstore: opening event log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("eventstore: appending event: %w", err)
	}

	metrics.EventsAppendedTotal.Inc()
	log.WithSpecName(event.SpecName).Debug().
		Str("event_type", string(event.EventType)).
		Str("task_id", event.TaskID).
		Msg("event recorded")
	return nil
}

// GetAll returns every event recorded for specName, in log order.
// Corrupted lines are skipped rather than failing the whole read, since a
// crash mid-append can leave a truncated trailing line.
func (s *Store) GetAll(specName string) ([]types.TaskEvent, error) {
	return s.scan(specName, func(types.TaskEvent) bool { return true })
}

// GetByTask returns every event for specName whose TaskID matches taskID.
func (s *Store) GetByTask(specName, taskID string) ([]types.TaskEvent, error) {
	return s.scan(specName, func(e types.TaskEvent) bool { return e.TaskID == taskID })
}

// GetByTimeRange returns every event for specName whose Timestamp falls
// within [start, end] inclusive.
func (s *Store) GetByTimeRange(specName string, start, end time.Time) ([]types.TaskEvent, error) {
	return s.scan(specName, func(e types.TaskEvent) bool {
		return !e.Timestamp.Before(start) && !e.Timestamp.After(end)
	})
}

func (s *Store) scan(specName string, keep func(types.TaskEvent) bool) ([]types.TaskEvent, error) {
	path := s.eventFile(specName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.TaskEvent{}, nil
		}
		return nil, fmt.Errorf("eventstore: opening event log for %q: %w", specName, err)
	}
	defer f.Close()

	var events []types.TaskEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		event, err := types.EventFromJSONL(line)
		if err != nil {
			log.WithSpecName(specName).Warn().Err(err).Msg("skipping corrupted event log line")
			continue
		}
		if keep(event) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: reading event log for %q: %w", specName, err)
	}
	if events == nil {
		events = []types.TaskEvent{}
	}
	return events, nil
}

// Rotate moves any spec's event log that has reached maxSizeMB aside to
// a numbered sibling (events.jsonl.1, events.jsonl.2, ...) and starts a
// fresh empty log in its place.
func (s *Store) Rotate(maxSizeMB int) error {
	maxSizeBytes := int64(maxSizeMB) * 1024 * 1024

	entries, err := os.ReadDir(s.eventsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("eventstore: listing %s: %w", s.eventsDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		specName := entry.Name()
		eventFile := s.eventFile(specName)

		info, err := os.Stat(eventFile)
		if err != nil {
			continue
		}
		if info.Size() < maxSizeBytes {
			continue
		}

		rotationNum := 1
		var rotatedPath string
		for {
			rotatedPath = filepath.Join(s.specDir(specName), fmt.Sprintf("%s.%d", eventFileName, rotationNum))
			if _, err := os.Stat(rotatedPath); os.IsNotExist(err) {
				break
			}
			rotationNum++
		}

		if err := os.Rename(eventFile, rotatedPath); err != nil {
			return fmt.Errorf("eventstore: rotating log for %q: %w", specName, err)
		}
		if err := os.WriteFile(eventFile, nil, 0o644); err != nil {
			return fmt.Errorf("eventstore: recreating log for %q: %w", specName, err)
		}

		metrics.EventRotationsTotal.Inc()
		log.WithSpecName(specName).Info().Str("rotated_to", rotatedPath).Msg("event log rotated")
	}
	return nil
}

// Clear removes specName's event log outright. It exists for test fixtures
// and deliberate history resets; production callers should prefer Rotate.
func (s *Store) Clear(specName string) error {
	path := s.eventFile(specName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("eventstore: clearing log for %q: %w", specName, err)
	}
	return nil
}
