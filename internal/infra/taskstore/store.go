// Package taskstore persists taskset documents as pretty-printed JSON at
// tasksets/<spec>/taskset.json under the registry root. Writes go through a
// temp file + rename, so concurrent readers always see a complete document.
package taskstore

import (
	"fmt"
	"os"
	"sort"
	"time"

	"necrocode/internal/infra/filestore"
	"necrocode/internal/infra/roots"
	"necrocode/internal/shared/logging"
	"necrocode/taskset"

	jsonx "necrocode/internal/shared/json"
)

// restoreRequiredKeys are the fields a document must carry to be restored.
var restoreRequiredKeys = []string{"spec_name", "version", "created_at", "updated_at", "tasks"}

// Store reads and writes taskset documents. It does no locking; callers
// serialize writers through the lock manager.
type Store struct {
	roots  roots.Roots
	logger logging.Logger
	now    func() time.Time
}

// NewStore builds a Store. now stamps backup file names and defaults to
// time.Now.
func NewStore(r roots.Roots, logger logging.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{roots: r, logger: logging.OrNop(logger), now: now}
}

// Save writes the document atomically, creating the spec directory on
// first use.
func (s *Store) Save(ts *taskset.Taskset) error {
	data, err := filestore.MarshalJSONIndent(ts)
	if err != nil {
		return taskset.IOError("marshal taskset for spec "+ts.SpecName, err)
	}
	if err := filestore.AtomicWrite(s.roots.TasksetFile(ts.SpecName), data, 0o644); err != nil {
		return taskset.IOError("write taskset for spec "+ts.SpecName, err)
	}
	s.logger.Debug("saved taskset for spec %s (version %d, %d tasks)",
		ts.SpecName, ts.Version, len(ts.Tasks))
	return nil
}

// Load reads and validates one spec's document.
func (s *Store) Load(spec string) (*taskset.Taskset, error) {
	data, err := filestore.ReadFileOrEmpty(s.roots.TasksetFile(spec))
	if err != nil {
		return nil, taskset.IOError("read taskset for spec "+spec, err)
	}
	if data == nil {
		return nil, taskset.NotFoundError("taskset for spec " + spec)
	}
	var ts taskset.Taskset
	if err := jsonx.Unmarshal(data, &ts); err != nil {
		return nil, taskset.IntegrityError(fmt.Sprintf("taskset for spec %s is not valid JSON: %v", spec, err))
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	return &ts, nil
}

// Exists reports whether a document is present for spec.
func (s *Store) Exists(spec string) (bool, error) {
	_, err := os.Stat(s.roots.TasksetFile(spec))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, taskset.IOError("stat taskset for spec "+spec, err)
}

// List returns the specs that have a persisted document, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.roots.Tasksets)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, taskset.IOError("list tasksets", err)
	}
	var specs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ok, err := s.Exists(entry.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			specs = append(specs, entry.Name())
		}
	}
	sort.Strings(specs)
	return specs, nil
}

// Delete removes one spec's document directory. The event history for the
// spec is kept; it is an audit record, not part of the document.
func (s *Store) Delete(spec string) error {
	ok, err := s.Exists(spec)
	if err != nil {
		return err
	}
	if !ok {
		return taskset.NotFoundError("taskset for spec " + spec)
	}
	if err := os.RemoveAll(s.roots.TasksetDir(spec)); err != nil {
		return taskset.IOError("delete taskset for spec "+spec, err)
	}
	s.logger.Info("deleted taskset for spec %s", spec)
	return nil
}

// Backup copies the current document to
// backups/<spec>_backup_<YYYYmmdd_HHMMSS>.json and returns the backup path.
// The document is parsed first; a corrupt document never becomes a backup.
func (s *Store) Backup(spec string) (string, error) {
	data, err := filestore.ReadFileOrEmpty(s.roots.TasksetFile(spec))
	if err != nil {
		return "", taskset.IOError("read taskset for spec "+spec, err)
	}
	if data == nil {
		return "", taskset.NotFoundError("taskset for spec " + spec)
	}
	var ts taskset.Taskset
	if err := jsonx.Unmarshal(data, &ts); err != nil {
		return "", taskset.IntegrityError(fmt.Sprintf("refusing to back up spec %s: document is not valid JSON: %v", spec, err))
	}

	path := s.roots.BackupFile(spec, s.now())
	if err := filestore.AtomicWrite(path, data, 0o644); err != nil {
		return "", taskset.IOError("write backup for spec "+spec, err)
	}
	s.logger.Info("backed up taskset for spec %s to %s", spec, path)
	return path, nil
}

// Restore validates the document at path and saves it under its own spec
// name, replacing any current document for that spec.
func (s *Store) Restore(path string) (*taskset.Taskset, error) {
	data, err := filestore.ReadFileOrEmpty(path)
	if err != nil {
		return nil, taskset.IOError("read backup "+path, err)
	}
	if data == nil {
		return nil, taskset.NotFoundError("backup " + path)
	}

	var raw map[string]jsonx.RawMessage
	if err := jsonx.Unmarshal(data, &raw); err != nil {
		return nil, taskset.IntegrityError(fmt.Sprintf("backup %s is not a JSON object: %v", path, err))
	}
	for _, key := range restoreRequiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, taskset.IntegrityError(fmt.Sprintf("backup %s: missing required field %q", path, key))
		}
	}

	var ts taskset.Taskset
	if err := jsonx.Unmarshal(data, &ts); err != nil {
		return nil, taskset.IntegrityError(fmt.Sprintf("backup %s: malformed document: %v", path, err))
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	if err := s.Save(&ts); err != nil {
		return nil, err
	}
	s.logger.Info("restored taskset for spec %s from %s (version %d)", ts.SpecName, path, ts.Version)
	return &ts, nil
}
