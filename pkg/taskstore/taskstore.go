package taskstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/task-registry/pkg/log"
	"github.com/cuemby/task-registry/pkg/registryerr"
	"github.com/cuemby/task-registry/pkg/types"
)

const tasksetFileName = "taskset.json"

// Store persists tasksets as one taskset.json document per spec name,
// under storageDir/<spec_name>/taskset.json. Writes are atomic: a
// temp file is written and fsynced, then renamed over the target so a
// concurrent reader never observes a partially written document.
type Store struct {
	storageDir string
}

// New creates a Store rooted at storageDir, creating the directory if
// it does not already exist.
func New(storageDir string) (*Store, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("taskstore: creating storage dir %s: %w", storageDir, err)
	}
	return &Store{storageDir: storageDir}, nil
}

func (s *Store) tasksetDir(specName string) string {
	return filepath.Join(s.storageDir, specName)
}

func (s *Store) tasksetFile(specName string) string {
	return filepath.Join(s.tasksetDir(specName), tasksetFileName)
}

// Save writes taskset to disk atomically, stamping UpdatedAt with the
// current time first.
func (s *Store) Save(taskset *types.Taskset) error {
	storeLog := log.WithSpecName(taskset.SpecName)

	if err := os.MkdirAll(s.tasksetDir(taskset.SpecName), 0o755); err != nil {
		return fmt.Errorf("taskstore: creating taskset dir: %w", err)
	}

	taskset.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(taskset, "", "  ")
	if err != nil {
		return fmt.Errorf("taskstore: marshaling taskset %q: %w", taskset.SpecName, err)
	}

	if err := atomicWrite(s.tasksetFile(taskset.SpecName), data); err != nil {
		return fmt.Errorf("taskstore: saving taskset %q: %w", taskset.SpecName, err)
	}

	storeLog.Debug().Int("tasks", len(taskset.Tasks)).Msg("taskset saved")
	return nil
}

// Load reads and parses the taskset for specName.
func (s *Store) Load(specName string) (*types.Taskset, error) {
	path := s.tasksetFile(specName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &registryerr.TasksetNotFoundError{SpecName: specName}
		}
		return nil, fmt.Errorf("taskstore: reading taskset %q: %w", specName, err)
	}

	var taskset types.Taskset
	if err := json.Unmarshal(data, &taskset); err != nil {
		return nil, fmt.Errorf("taskstore: parsing taskset %q: %w", specName, err)
	}
	return &taskset, nil
}

// Exists reports whether a taskset document exists for specName.
func (s *Store) Exists(specName string) bool {
	_, err := os.Stat(s.tasksetFile(specName))
	return err == nil
}

// List returns the spec names of every taskset in the store, sorted
// alphabetically.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.storageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("taskstore: listing %s: %w", s.storageDir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.storageDir, entry.Name(), tasksetFileName)); err == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the taskset directory for specName, including its
// taskset.json document.
func (s *Store) Delete(specName string) error {
	dir := s.tasksetDir(specName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &registryerr.TasksetNotFoundError{SpecName: specName}
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("taskstore: deleting taskset %q: %w", specName, err)
	}
	log.WithSpecName(specName).Info().Msg("taskset deleted")
	return nil
}

// Backup loads specName (re-verifying it parses cleanly), then writes a
// timestamped copy into backupDir. It returns the path of the backup file.
func (s *Store) Backup(specName, backupDir string) (string, error) {
	if !s.Exists(specName) {
		return "", &registryerr.TasksetNotFoundError{SpecName: specName}
	}

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("taskstore: creating backup dir %s: %w", backupDir, err)
	}

	taskset, err := s.Load(specName)
	if err != nil {
		return "", fmt.Errorf("taskstore: backing up %q: %w", specName, err)
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("%s_backup_%s.json", specName, timestamp))

	data, err := json.MarshalIndent(taskset, "", "  ")
	if err != nil {
		return "", fmt.Errorf("taskstore: marshaling backup of %q: %w", specName, err)
	}
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("taskstore: writing backup of %q: %w", specName, err)
	}

	log.WithSpecName(specName).Info().Str("backup_path", backupPath).Msg("taskset backed up")
	return backupPath, nil
}

// Restore parses backupPath, validates it carries every field a taskset
// document requires, then saves it as the current document for its
// spec name. It returns the restored spec name.
func (s *Store) Restore(backupPath string) (string, error) {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return "", fmt.Errorf("taskstore: reading backup %s: %w", backupPath, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("taskstore: parsing backup %s: %w", backupPath, err)
	}
	if err := verifyBackupIntegrity(raw); err != nil {
		return "", fmt.Errorf("taskstore: restoring %s: %w", backupPath, err)
	}

	var taskset types.Taskset
	if err := json.Unmarshal(data, &taskset); err != nil {
		return "", fmt.Errorf("taskstore: decoding backup %s: %w", backupPath, err)
	}

	if err := s.Save(&taskset); err != nil {
		return "", fmt.Errorf("taskstore: restoring %q: %w", taskset.SpecName, err)
	}

	log.WithSpecName(taskset.SpecName).Info().Str("backup_path", backupPath).Msg("taskset restored from backup")
	return taskset.SpecName, nil
}

var backupRequiredFields = []string{"spec_name", "version", "created_at", "updated_at", "tasks"}

func verifyBackupIntegrity(raw map[string]json.RawMessage) error {
	for _, field := range backupRequiredFields {
		if _, ok := raw[field]; !ok {
			return &registryerr.IntegrityError{Message: fmt.Sprintf("backup is missing required field %q", field)}
		}
	}

	var tasks []json.RawMessage
	if err := json.Unmarshal(raw["tasks"], &tasks); err != nil {
		return &registryerr.IntegrityError{Message: "backup field \"tasks\" is not a list"}
	}

	var version int
	if err := json.Unmarshal(raw["version"], &version); err != nil {
		return &registryerr.IntegrityError{Message: "backup field \"version\" is not an integer"}
	}

	return nil
}

// atomicWrite writes data to path via a sibling temp file, fsyncing it
// before an atomic rename over the destination.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
