package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"necrocode/taskset"
)

func exportFixture() *taskset.Taskset {
	return &taskset.Taskset{
		SpecName: "auth-service",
		Version:  1,
		Tasks: []taskset.Task{
			{ID: "1", Title: "Scaffold", State: taskset.StateDone},
			{ID: "1.2", Title: `Implement "login"`, State: taskset.StateReady, Dependencies: []string{"1"}},
			{ID: "2", Title: "Cleanup", State: taskset.StateBlocked, Dependencies: []string{"1.2"}, IsOptional: true},
			{ID: "3", Title: "Deploy", State: taskset.StateFailed, Dependencies: []string{"1"}},
			{ID: "4", Title: "Worker", State: taskset.StateRunning},
		},
	}
}

func TestToDot_StructureAndColors(t *testing.T) {
	out := ToDot(exportFixture())

	assert.True(t, strings.HasPrefix(out, `digraph "auth-service" {`))
	assert.Contains(t, out, "rankdir=LR;")
	assert.Contains(t, out, `"1" [label="1. Scaffold", fillcolor=blue, style="filled"];`)
	assert.Contains(t, out, `fillcolor=green`)
	assert.Contains(t, out, `fillcolor=gold`)
	assert.Contains(t, out, `fillcolor=red`)
	assert.Contains(t, out, `"2" [label="2. Cleanup", fillcolor=grey, style="filled,dashed"];`)
	assert.Contains(t, out, `"1" -> "1.2";`)
	assert.Contains(t, out, `"1.2" -> "2";`)
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestToDot_EscapesQuotesInLabels(t *testing.T) {
	out := ToDot(exportFixture())
	assert.Contains(t, out, `label="1.2. Implement \"login\""`)
}

func TestToMermaid_SanitizesIdentifiers(t *testing.T) {
	ts := &taskset.Taskset{
		SpecName: "auth-service",
		Tasks: []taskset.Task{
			{ID: "1.2", Title: "Login", State: taskset.StateReady},
			{ID: "sub-task", Title: "Sub", State: taskset.StateReady, Dependencies: []string{"1.2"}},
		},
	}
	out := ToMermaid(ts)

	assert.Contains(t, out, `1_2["1.2. Login"]:::ready`)
	assert.Contains(t, out, `sub_task["sub-task. Sub"]:::ready`)
	assert.Contains(t, out, "1_2 --> sub_task")
	assert.NotContains(t, out, "1.2 -->")
}

func TestToMermaid_ClassDefsAndStates(t *testing.T) {
	out := ToMermaid(exportFixture())

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	for _, state := range taskset.States() {
		assert.Contains(t, out, "classDef "+string(state)+" fill:")
	}
	assert.Contains(t, out, `:::done`)
	assert.Contains(t, out, `:::ready`)
	assert.Contains(t, out, `:::blocked`)
	assert.Contains(t, out, `:::failed`)
	assert.Contains(t, out, `:::running`)
}

func TestToMermaid_OptionalTasksDashed(t *testing.T) {
	out := ToMermaid(exportFixture())
	assert.Contains(t, out, "style 2 stroke-dasharray: 5 5")
}

func TestToMermaid_EscapesQuotesInLabels(t *testing.T) {
	out := ToMermaid(exportFixture())
	assert.Contains(t, out, `1_2["1.2. Implement #quot;login#quot;"]:::ready`)
}
