package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"necrocode/taskset"
)

const writerDoc = `# Plan

- [ ] 1. First task
  - Notes stay
- [-] 2. Second task
- [X] 3. Third task
- [ ] 9. Unknown stays`

func TestRewriteStatuses(t *testing.T) {
	states := map[string]taskset.TaskState{
		"1": taskset.StateDone,
		"2": taskset.StateReady,
		"3": taskset.StateDone, // X normalizes to x
	}
	got, changed := RewriteStatuses(writerDoc, states)

	want := `# Plan

- [x] 1. First task
  - Notes stay
- [ ] 2. Second task
- [x] 3. Third task
- [ ] 9. Unknown stays`
	assert.Equal(t, want, got)
	assert.Equal(t, 3, changed)
}

func TestRewriteStatuses_NoChangeWhenGlyphMatches(t *testing.T) {
	doc := "- [x] 1. Done already\n- [ ] 2. Pending"
	got, changed := RewriteStatuses(doc, map[string]taskset.TaskState{
		"1": taskset.StateDone,
		"2": taskset.StateReady,
	})
	assert.Equal(t, doc, got)
	assert.Zero(t, changed)
}

func TestRewriteStatuses_BlockedAndFailedRenderUnchecked(t *testing.T) {
	doc := "- [x] 1. Was done\n- [-] 2. Was running"
	got, changed := RewriteStatuses(doc, map[string]taskset.TaskState{
		"1": taskset.StateFailed,
		"2": taskset.StateBlocked,
	})
	assert.Equal(t, "- [ ] 1. Was done\n- [ ] 2. Was running", got)
	assert.Equal(t, 2, changed)
}

func TestRewriteStatuses_PreservesCRLF(t *testing.T) {
	doc := "- [ ] 1. Task\r\ntrailing prose\r\n"
	got, changed := RewriteStatuses(doc, map[string]taskset.TaskState{"1": taskset.StateDone})
	assert.Equal(t, "- [x] 1. Task\r\ntrailing prose\r\n", got)
	assert.Equal(t, 1, changed)
}

func TestRewriteStatuses_EmptyStates(t *testing.T) {
	got, changed := RewriteStatuses(writerDoc, nil)
	assert.Equal(t, writerDoc, got)
	assert.Zero(t, changed)
}

func TestRewriteThenParseRoundTrip(t *testing.T) {
	states := map[string]taskset.TaskState{"1": taskset.StateDone, "2": taskset.StateRunning}
	got, _ := RewriteStatuses(writerDoc, states)

	tasks, _ := Parse(got)
	require.Len(t, tasks, 4)
	assert.Equal(t, byte('x'), tasks[0].Checkbox)
	assert.Equal(t, byte('-'), tasks[1].Checkbox)
	// Descriptions and titles survive the rewrite untouched.
	assert.Equal(t, "Notes stay", tasks[0].Description)
	assert.Equal(t, "Unknown stays", tasks[3].Title)
}

func TestDiffStats(t *testing.T) {
	assert.Equal(t, Stats{}, DiffStats("same", "same"))
	assert.False(t, DiffStats("same", "same").Changed())

	st := DiffStats("- [ ] 1. T\n", "- [x] 1. T\n")
	assert.Equal(t, Stats{AddedLines: 1, DeletedLines: 1}, st)
	assert.True(t, st.Changed())

	assert.Equal(t, Stats{AddedLines: 1}, DiffStats("alpha\n", "alpha\nbeta\n"))
	assert.Equal(t, Stats{DeletedLines: 1}, DiffStats("alpha\nbeta\n", "alpha\n"))
}
