package tools

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const diffContext = 2

// lineDiff renders a compact line diff of a file edit: changed lines
// prefixed with -/+ and up to diffContext unchanged lines around them.
func lineDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out strings.Builder
	fmt.Fprintf(&out, "--- a/%s\n+++ b/%s\n", path, path)
	for i, d := range diffs {
		ls := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			for _, l := range ls {
				out.WriteString("-" + l + "\n")
			}
		case diffmatchpatch.DiffInsert:
			for _, l := range ls {
				out.WriteString("+" + l + "\n")
			}
		case diffmatchpatch.DiffEqual:
			first, last := i == 0, i == len(diffs)-1
			var head, tail []string
			if !first && !last && len(ls) <= 2*diffContext {
				head = ls
			} else {
				if !first {
					head = ls[:min(len(ls), diffContext)]
				}
				if !last {
					tail = ls[len(ls)-min(len(ls), diffContext):]
				}
			}
			for _, l := range head {
				out.WriteString(" " + l + "\n")
			}
			if len(tail) > 0 && len(head)+len(tail) < len(ls) {
				out.WriteString("@@\n")
			}
			for _, l := range tail {
				out.WriteString(" " + l + "\n")
			}
		}
	}
	return out.String()
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}
