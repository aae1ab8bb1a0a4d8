// Package eventlog keeps one append-only JSONL history per spec at
// events/<spec>/events.jsonl under the registry root. Appends holding the
// spec lock are totally ordered; reads never take the lock and tolerate
// corrupt lines.
package eventlog

import (
	"bufio"
	"bytes"
	"os"
	"time"

	"necrocode/internal/infra/filestore"
	"necrocode/internal/infra/roots"
	"necrocode/internal/shared/logging"
	"necrocode/taskset"

	jsonx "necrocode/internal/shared/json"
)

// Store appends and reads per-spec event logs.
type Store struct {
	roots  roots.Roots
	logger logging.Logger
}

// NewStore builds a Store.
func NewStore(r roots.Roots, logger logging.Logger) *Store {
	return &Store{roots: r, logger: logging.OrNop(logger)}
}

// Record appends one event as a single JSON line and fsyncs. The log and
// its directory are created on first use.
func (s *Store) Record(ev taskset.Event) error {
	if err := filestore.EnsureDir(s.roots.EventsDir(ev.SpecName)); err != nil {
		return taskset.IOError("create events directory for spec "+ev.SpecName, err)
	}
	data, err := jsonx.Marshal(ev)
	if err != nil {
		return taskset.IOError("marshal event for spec "+ev.SpecName, err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.roots.EventsFile(ev.SpecName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return taskset.IOError("open event log for spec "+ev.SpecName, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return taskset.IOError("append event for spec "+ev.SpecName, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return taskset.IOError("sync event log for spec "+ev.SpecName, err)
	}
	if err := f.Close(); err != nil {
		return taskset.IOError("close event log for spec "+ev.SpecName, err)
	}
	return nil
}

// GetAll returns every well-formed event for spec in append order.
func (s *Store) GetAll(spec string) ([]taskset.Event, error) {
	return s.scan(spec, func(taskset.Event) bool { return true })
}

// GetByTask returns the events for one task in append order.
func (s *Store) GetByTask(spec, taskID string) ([]taskset.Event, error) {
	return s.scan(spec, func(ev taskset.Event) bool { return ev.TaskID == taskID })
}

// GetByTimeRange returns the events with from <= timestamp <= to. A zero
// bound leaves that end open.
func (s *Store) GetByTimeRange(spec string, from, to time.Time) ([]taskset.Event, error) {
	return s.scan(spec, func(ev taskset.Event) bool {
		if !from.IsZero() && ev.Timestamp.Before(from) {
			return false
		}
		if !to.IsZero() && ev.Timestamp.After(to) {
			return false
		}
		return true
	})
}

// scan reads the live log line by line, skipping lines that fail to parse.
// Rotated files are not consulted. A missing log means no events yet.
func (s *Store) scan(spec string, keep func(taskset.Event) bool) ([]taskset.Event, error) {
	f, err := os.Open(s.roots.EventsFile(spec))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, taskset.IOError("open event log for spec "+spec, err)
	}
	defer func() { _ = f.Close() }()

	var out []taskset.Event
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev taskset.Event
		if err := jsonx.Unmarshal(line, &ev); err != nil {
			skipped++
			continue
		}
		if keep(ev) {
			out = append(out, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, taskset.IOError("scan event log for spec "+spec, err)
	}
	if skipped > 0 {
		s.logger.Warn("event log for spec %s: skipped %d malformed line(s)", spec, skipped)
	}
	return out, nil
}
