package taskset

import (
	"strconv"
	"strings"
)

// CompareIDs orders dotted hierarchical ids segment by segment, comparing
// numeric segments as numbers so "1.2" sorts before "1.10". Non-numeric
// segments fall back to string comparison. A proper prefix sorts first
// ("1" before "1.1").
func CompareIDs(a, b string) int {
	if a == b {
		return 0
	}
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if an < bn {
				return -1
			}
			return 1
		}
		return strings.Compare(as[i], bs[i])
	}
	if len(as) < len(bs) {
		return -1
	}
	if len(as) > len(bs) {
		return 1
	}
	return 0
}

// ParentID returns the dotted prefix one level up, or "" for a root id.
func ParentID(id string) string {
	idx := strings.LastIndex(id, ".")
	if idx < 0 {
		return ""
	}
	return id[:idx]
}
