// Package plan reads and rewrites the markdown checklist documents that
// mirror a taskset. The parser is deliberately forgiving: headers, prose and
// anything it does not recognize pass through untouched, and the writer only
// ever replaces checkbox glyphs so a round-trip preserves every other byte.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"necrocode/taskset"
)

// Checkbox glyphs recognized on task lines. Upper-case X is accepted on
// input and normalized to lower-case on rewrite.
const (
	CheckboxPending byte = ' '
	CheckboxRunning byte = '-'
	CheckboxDone    byte = 'x'
)

var (
	taskLinePattern     = regexp.MustCompile(`^([ \t]*)- \[([ xX-])\](\*?) (\d+(?:\.\d+)*)\. (.+)$`)
	bulletPattern       = regexp.MustCompile(`^[ \t]*- (\S.*)$`)
	requirementsPattern = regexp.MustCompile(`^_Requirements:\s*(.*?)_$`)
	idPattern           = regexp.MustCompile(`^\d+(?:\.\d+)*$`)
)

// Task is one checklist entry parsed from a plan document.
type Task struct {
	ID           string
	Title        string
	Description  string
	Dependencies []string
	Checkbox     byte
	Optional     bool
	Indent       int
	ParentID     string
	Line         int
}

// Diagnostic reports a line that looked like plan syntax but could not be
// accepted. Diagnostics never abort a parse.
type Diagnostic struct {
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Message)
}

// Parse extracts checklist tasks from a plan document. Task lines follow
//
//	<indent>- [<checkbox>]<*?> <dotted-id>. <title>
//
// with two spaces or one tab per indent level and an optional literal `*`
// marking the task optional. Plain bullets under a task accumulate as its
// description; a `_Requirements: <ids>_` bullet contributes dependencies
// instead. Everything else is ignored.
func Parse(content string) ([]Task, []Diagnostic) {
	var (
		tasks []Task
		diags []Diagnostic
		seen  = make(map[string]int)
	)
	last := -1
	for i, raw := range strings.Split(content, "\n") {
		lineNo := i + 1
		line := strings.TrimRight(raw, "\r")

		if m := taskLinePattern.FindStringSubmatch(line); m != nil {
			id := m[4]
			if prev, dup := seen[id]; dup {
				diags = append(diags, Diagnostic{
					Line:    lineNo,
					Message: fmt.Sprintf("duplicate task id %s (first seen on line %d)", id, tasks[prev].Line),
				})
				continue
			}
			seen[id] = len(tasks)
			tasks = append(tasks, Task{
				ID:       id,
				Title:    strings.TrimSpace(m[5]),
				Checkbox: m[2][0],
				Optional: m[3] == "*",
				Indent:   indentLevel(m[1]),
				ParentID: nearestParent(id, seen),
				Line:     lineNo,
			})
			last = len(tasks) - 1
			continue
		}

		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "- [") {
			diags = append(diags, Diagnostic{Line: lineNo, Message: "malformed task line"})
			continue
		}

		m := bulletPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if last < 0 {
			diags = append(diags, Diagnostic{Line: lineNo, Message: "bullet before the first task"})
			continue
		}
		body := strings.TrimSpace(m[1])
		if rm := requirementsPattern.FindStringSubmatch(body); rm != nil {
			tasks[last].Dependencies = appendIDs(tasks[last].Dependencies, rm[1])
			continue
		}
		if tasks[last].Description == "" {
			tasks[last].Description = body
		} else {
			tasks[last].Description += "\n" + body
		}
	}
	return tasks, diags
}

// ImpliedState maps a checkbox glyph to the state it asserts.
func ImpliedState(checkbox byte) taskset.TaskState {
	switch checkbox {
	case 'x', 'X':
		return taskset.StateDone
	case CheckboxRunning:
		return taskset.StateRunning
	default:
		return taskset.StateReady
	}
}

// CheckboxFor maps a task state to its checklist glyph. Blocked and failed
// tasks render unchecked; the registry, not the checklist, is the record of
// why they are not done.
func CheckboxFor(state taskset.TaskState) byte {
	switch state {
	case taskset.StateDone:
		return CheckboxDone
	case taskset.StateRunning:
		return CheckboxRunning
	default:
		return CheckboxPending
	}
}

// DefaultPath returns the conventional plan location for a spec,
// <cwd>/.kiro/specs/<spec>/tasks.md.
func DefaultPath(specName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", taskset.IOError("resolve working directory", err)
	}
	return filepath.Join(cwd, ".kiro", "specs", specName, "tasks.md"), nil
}

// indentLevel counts nesting depth: one tab or two spaces per level, odd
// trailing spaces ignored.
func indentLevel(prefix string) int {
	level, spaces := 0, 0
	for _, r := range prefix {
		if r == '\t' {
			level++
			spaces = 0
			continue
		}
		spaces++
		if spaces == 2 {
			level++
			spaces = 0
		}
	}
	return level
}

// nearestParent returns the longest proper dotted prefix of id that has
// already been parsed, or "".
func nearestParent(id string, seen map[string]int) string {
	for p := taskset.ParentID(id); p != ""; p = taskset.ParentID(p) {
		if _, ok := seen[p]; ok {
			return p
		}
	}
	return ""
}

// appendIDs splits a requirements list on commas and whitespace, keeping
// only well-formed dotted ids not already present.
func appendIDs(deps []string, list string) []string {
	for _, field := range strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		if !idPattern.MatchString(field) {
			continue
		}
		dup := false
		for _, d := range deps {
			if d == field {
				dup = true
				break
			}
		}
		if !dup {
			deps = append(deps, field)
		}
	}
	return deps
}
