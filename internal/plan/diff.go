package plan

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Stats summarizes how much of a plan document a rewrite touched.
type Stats struct {
	AddedLines   int
	DeletedLines int
}

// Changed reports whether the rewrite touched anything at all.
func (s Stats) Changed() bool {
	return s.AddedLines > 0 || s.DeletedLines > 0
}

// DiffStats computes line-level change counts between two versions of a plan
// document.
func DiffStats(oldContent, newContent string) Stats {
	if oldContent == newContent {
		return Stats{}
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var st Stats
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			st.AddedLines += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			st.DeletedLines += countLines(d.Text)
		}
	}
	return st
}

func countLines(text string) int {
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
