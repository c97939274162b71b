package diff

import (
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/kylelemons/godebug/diff"
)

// DiffExportedOnly pretty prints both values and returns a readable diff, or
// "" when they print the same.
func DiffExportedOnly[T any](want T, got T) string {
	printer := pp.New()
	printer.SetExportedOnly(true)
	printer.SetColoringEnabled(false)
	gotStr, wantStr := printer.Sprint(got), printer.Sprint(want)
	if gotStr == wantStr {
		return ""
	}
	abc := diff.Diff(gotStr, wantStr)
	str := "\n\n"
	str += "to convert ACTUAL ⏩️ EXPECTED:\n\n"
	str += "add:    ➕\n"
	str += "remove: ➖\n"
	str += "\n"
	str += markLines(abc)
	return str
}

// Projection shows a source document next to its projection line by line.
// Blank-only lines are rendered as "·" so masked lines stay visible.
func Projection(source, projected string) string {
	return markLines(diff.Diff(visible(source), visible(projected)))
}

func visible(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == "" && l != "" {
			lines[i] = strings.Repeat("·", len(l))
		}
	}
	return strings.Join(lines, "\n")
}

func markLines(d string) string {
	return strings.ReplaceAll(strings.ReplaceAll(d, "\n-", "\n➖"), "\n+", "\n➕")
}
