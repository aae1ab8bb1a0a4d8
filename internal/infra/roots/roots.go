// Package roots derives the registry's on-disk layout from one base
// directory: tasksets/, events/, locks/ and backups/ as siblings under it.
package roots

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"necrocode/internal/infra/filestore"
	"necrocode/taskset"
)

// DefaultBase is used when no root directory is configured.
const DefaultBase = "~/.necrocode/registry"

// Roots holds the resolved directory layout.
type Roots struct {
	Base     string
	Tasksets string
	Events   string
	Locks    string
	Backups  string
}

// Resolve builds the layout under base, falling back to DefaultBase when
// base is empty. ~ and environment variables are expanded.
func Resolve(base string) Roots {
	resolved := filestore.ResolvePath(base, DefaultBase)
	return Roots{
		Base:     resolved,
		Tasksets: filepath.Join(resolved, "tasksets"),
		Events:   filepath.Join(resolved, "events"),
		Locks:    filepath.Join(resolved, "locks"),
		Backups:  filepath.Join(resolved, "backups"),
	}
}

// Ensure creates every directory in the layout.
func (r Roots) Ensure() error {
	for _, dir := range []string{r.Base, r.Tasksets, r.Events, r.Locks, r.Backups} {
		if err := filestore.EnsureDir(dir); err != nil {
			return taskset.IOError("create registry directory "+dir, err)
		}
	}
	return nil
}

// TasksetDir returns the directory holding one spec's document.
func (r Roots) TasksetDir(spec string) string {
	return filepath.Join(r.Tasksets, spec)
}

// TasksetFile returns the path of one spec's document.
func (r Roots) TasksetFile(spec string) string {
	return filepath.Join(r.Tasksets, spec, "taskset.json")
}

// EventsDir returns the directory holding one spec's event log.
func (r Roots) EventsDir(spec string) string {
	return filepath.Join(r.Events, spec)
}

// EventsFile returns the live event log path for one spec.
func (r Roots) EventsFile(spec string) string {
	return filepath.Join(r.Events, spec, "events.jsonl")
}

// LockFile returns the advisory lock path for one spec.
func (r Roots) LockFile(spec string) string {
	return filepath.Join(r.Locks, spec+".lock")
}

// BackupFile returns the timestamped backup path for one spec.
func (r Roots) BackupFile(spec string, ts time.Time) string {
	name := fmt.Sprintf("%s_backup_%s.json", spec, ts.Format("20060102_150405"))
	return filepath.Join(r.Backups, name)
}

// ValidateSpecName rejects names that are not a single path element, so a
// spec name can never address files outside the layout.
func ValidateSpecName(spec string) error {
	if spec == "" {
		return taskset.IntegrityError("spec name is empty")
	}
	if spec == "." || spec == ".." || strings.ContainsAny(spec, `/\`) {
		return taskset.IntegrityError(fmt.Sprintf("spec name %q must be a single path element", spec))
	}
	return nil
}
