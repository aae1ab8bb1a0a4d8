package graph

import (
	"fmt"
	"strings"

	"necrocode/taskset"
)

// dotColors are Graphviz fill colors per state.
var dotColors = map[taskset.TaskState]string{
	taskset.StateReady:   "green",
	taskset.StateRunning: "gold",
	taskset.StateBlocked: "grey",
	taskset.StateDone:    "blue",
	taskset.StateFailed:  "red",
}

// mermaidColors are the same palette as hex fills for Mermaid classDefs.
var mermaidColors = map[taskset.TaskState]string{
	taskset.StateReady:   "#2ecc71",
	taskset.StateRunning: "#f1c40f",
	taskset.StateBlocked: "#95a5a6",
	taskset.StateDone:    "#3498db",
	taskset.StateFailed:  "#e74c3c",
}

// ToDot renders the taskset as a Graphviz digraph: one box per task filled
// by state, dashed borders on optional tasks, one edge per dependency from
// prerequisite to dependent.
func ToDot(ts *taskset.Taskset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotQuote(ts.SpecName))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")

	for i := range ts.Tasks {
		task := &ts.Tasks[i]
		style := "filled"
		if task.IsOptional {
			style = "filled,dashed"
		}
		label := fmt.Sprintf("%s. %s", task.ID, task.Title)
		fmt.Fprintf(&b, "  %s [label=%s, fillcolor=%s, style=%s];\n",
			dotQuote(task.ID), dotQuote(label), dotColor(task.State), dotQuote(style))
	}
	for i := range ts.Tasks {
		task := &ts.Tasks[i]
		for _, dep := range task.Dependencies {
			fmt.Fprintf(&b, "  %s -> %s;\n", dotQuote(dep), dotQuote(task.ID))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func dotColor(state taskset.TaskState) string {
	if color, ok := dotColors[state]; ok {
		return color
	}
	return "white"
}

func dotQuote(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// ToMermaid renders the taskset as a Mermaid flowchart. Node identifiers
// are sanitized (dots and dashes become underscores); labels escape quotes.
// Optional tasks get a dashed stroke.
func ToMermaid(ts *taskset.Taskset) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, state := range taskset.States() {
		fmt.Fprintf(&b, "    classDef %s fill:%s\n", state, mermaidColors[state])
	}

	for i := range ts.Tasks {
		task := &ts.Tasks[i]
		node := mermaidID(task.ID)
		label := mermaidEscape(fmt.Sprintf("%s. %s", task.ID, task.Title))
		class := string(task.State)
		if !task.State.Valid() {
			class = ""
		}
		if class != "" {
			fmt.Fprintf(&b, "    %s[\"%s\"]:::%s\n", node, label, class)
		} else {
			fmt.Fprintf(&b, "    %s[\"%s\"]\n", node, label)
		}
		if task.IsOptional {
			fmt.Fprintf(&b, "    style %s stroke-dasharray: 5 5\n", node)
		}
	}
	for i := range ts.Tasks {
		task := &ts.Tasks[i]
		for _, dep := range task.Dependencies {
			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(dep), mermaidID(task.ID))
		}
	}
	return b.String()
}

func mermaidID(id string) string {
	replaced := strings.ReplaceAll(id, ".", "_")
	return strings.ReplaceAll(replaced, "-", "_")
}

func mermaidEscape(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
