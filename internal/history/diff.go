package history

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// BugChanges lists bugs that appeared or disappeared between the two newest
// scans of a host.
type BugChanges struct {
	Added   []string
	Removed []string
}

// Empty reports whether nothing changed.
func (c BugChanges) Empty() bool { return len(c.Added) == 0 && len(c.Removed) == 0 }

// Changes compares the bug lists of the newest two entries of g. ok is false
// when the group has fewer than two scans.
func Changes(g HostGroup) (BugChanges, bool) {
	if len(g.Entries) < 2 {
		return BugChanges{}, false
	}
	newer, older := g.Entries[0], g.Entries[1]
	return diffLines(older.Bugs, newer.Bugs), true
}

func diffLines(before, after []string) BugChanges {
	dmp := diffmatchpatch.New()
	a := joinLines(sorted(before))
	b := joinLines(sorted(after))

	// Line mode: each bug becomes one rune so the diff works per bug.
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out BugChanges
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				out.Added = append(out.Added, line)
			case diffmatchpatch.DiffDelete:
				out.Removed = append(out.Removed, line)
			}
		}
	}
	return out
}

func sorted(items []string) []string {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return out
}

func joinLines(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return strings.Join(items, "\n") + "\n"
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
