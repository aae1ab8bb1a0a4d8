package taskstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"necrocode/internal/infra/roots"
	"necrocode/taskset"
)

func fixedClock() time.Time {
	return time.Date(2026, 2, 3, 14, 5, 6, 0, time.UTC)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(roots.Resolve(t.TempDir()), nil, fixedClock)
}

func sampleTaskset() *taskset.Taskset {
	now := fixedClock()
	return &taskset.Taskset{
		SpecName:  "auth-service",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Tasks: []taskset.Task{
			{ID: "1", Title: "Scaffold", State: taskset.StateDone, CreatedAt: now, UpdatedAt: now},
			{ID: "2", Title: "Implement login", State: taskset.StateReady, Dependencies: []string{"1"}, CreatedAt: now, UpdatedAt: now},
		},
		Metadata: map[string]any{"owner": "platform"},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleTaskset()))

	got, err := s.Load("auth-service")
	require.NoError(t, err)
	assert.Equal(t, "auth-service", got.SpecName)
	assert.Equal(t, 1, got.Version)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, taskset.StateReady, got.Tasks[1].State)
	assert.Equal(t, []string{"1"}, got.Tasks[1].Dependencies)
	assert.Equal(t, "platform", got.Metadata["owner"])
}

func TestSave_WritesIndentedJSONWithNewline(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleTaskset()))

	data, err := os.ReadFile(s.roots.TasksetFile("auth-service"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
	assert.Contains(t, string(data), "\n  \"spec_name\"")
}

func TestLoad_MissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("ghost")
	assert.ErrorIs(t, err, taskset.ErrNotFound)
}

func TestLoad_CorruptIsIntegrityError(t *testing.T) {
	s := newTestStore(t)
	file := s.roots.TasksetFile("auth-service")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte(`{"spec_name": "auth`), 0o644))

	_, err := s.Load("auth-service")
	assert.ErrorIs(t, err, taskset.ErrIntegrity)
}

func TestLoad_IgnoresStaleTempFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleTaskset()))

	// A crash between write and rename leaves a .tmp sibling behind.
	stale := s.roots.TasksetFile("auth-service") + ".tmp"
	require.NoError(t, os.WriteFile(stale, []byte(`{"half`), 0o644))

	got, err := s.Load("auth-service")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

func TestExistsListDelete(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.Exists("auth-service")
	require.NoError(t, err)
	assert.False(t, ok)

	specs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, specs)

	require.NoError(t, s.Save(sampleTaskset()))
	other := sampleTaskset()
	other.SpecName = "billing"
	require.NoError(t, s.Save(other))

	ok, err = s.Exists("auth-service")
	require.NoError(t, err)
	assert.True(t, ok)

	specs, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"auth-service", "billing"}, specs)

	require.NoError(t, s.Delete("billing"))
	specs, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"auth-service"}, specs)

	assert.ErrorIs(t, s.Delete("billing"), taskset.ErrNotFound)
}

func TestBackup_NamesFileByTimestamp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleTaskset()))

	path, err := s.Backup("auth-service")
	require.NoError(t, err)
	assert.Equal(t, "auth-service_backup_20260203_140506.json", filepath.Base(path))

	original, err := os.ReadFile(s.roots.TasksetFile("auth-service"))
	require.NoError(t, err)
	copied, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, copied)
}

func TestBackup_RefusesCorruptDocument(t *testing.T) {
	s := newTestStore(t)
	file := s.roots.TasksetFile("auth-service")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("not json"), 0o644))

	_, err := s.Backup("auth-service")
	assert.ErrorIs(t, err, taskset.ErrIntegrity)

	entries, _ := os.ReadDir(s.roots.Backups)
	assert.Empty(t, entries)
}

func TestBackup_MissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Backup("ghost")
	assert.ErrorIs(t, err, taskset.ErrNotFound)
}

func TestRestore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(sampleTaskset()))
	path, err := s.Backup("auth-service")
	require.NoError(t, err)

	// diverge the live document, then restore the backup over it
	ts, err := s.Load("auth-service")
	require.NoError(t, err)
	ts.Version = 9
	ts.Tasks[1].State = taskset.StateFailed
	require.NoError(t, s.Save(ts))

	restored, err := s.Restore(path)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Version)

	reloaded, err := s.Load("auth-service")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Version)
	assert.Equal(t, taskset.StateReady, reloaded.Tasks[1].State)
}

func TestRestore_MissingRequiredFieldIsIntegrityError(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "bad_backup.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"spec_name":"auth-service","version":1,"tasks":[]}`), 0o644))

	_, err := s.Restore(path)
	require.ErrorIs(t, err, taskset.ErrIntegrity)
	assert.Contains(t, err.Error(), "created_at")
}

func TestRestore_MissingFileIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Restore(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, taskset.ErrNotFound)
}
