package plan

import (
	"strings"

	"necrocode/taskset"
)

// RewriteStatuses returns content with the checkbox glyph of every task line
// whose id appears in states replaced by the glyph for that state. All other
// bytes survive unchanged, including lines for unknown tasks, indentation,
// descriptions and trailing carriage returns. The count reports how many
// lines actually changed.
func RewriteStatuses(content string, states map[string]taskset.TaskState) (string, int) {
	lines := strings.Split(content, "\n")
	changed := 0
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		m := taskLinePattern.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		id := line[m[8]:m[9]]
		state, ok := states[id]
		if !ok {
			continue
		}
		glyph := CheckboxFor(state)
		at := m[4] // checkbox submatch start
		if raw[at] == glyph {
			continue
		}
		lines[i] = raw[:at] + string(glyph) + raw[at+1:]
		changed++
	}
	return strings.Join(lines, "\n"), changed
}
