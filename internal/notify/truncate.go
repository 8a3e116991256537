package notify

import (
	"fmt"
	"strings"
)

// TruncatedNote precedes a transcript that was shortened.
const TruncatedNote = "NOTE: Log was too big for email and was shortened\n\n"

// Truncate shortens log to roughly maxBytes by removing lines from the
// middle. Head and tail keep the same number of whole lines, each within
// maxBytes/2, and a marker names how many lines were removed. A maxBytes
// <= 0 disables truncation. The boolean reports whether log was cut.
func Truncate(log string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(log) <= maxBytes {
		return log, false
	}
	lines := strings.SplitAfter(log, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	half := maxBytes / 2
	n := min(fit(lines, half, false), fit(lines, half, true))
	removed := len(lines) - 2*n

	var b strings.Builder
	b.Grow(maxBytes + 128)
	b.WriteString(TruncatedNote)
	for _, l := range lines[:n] {
		b.WriteString(l)
	}
	if n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "[...]\n\n\n --- LOG WAS TOO BIG - %d LINES REMOVED --\n\n\n[...]\n", removed)
	for _, l := range lines[len(lines)-n:] {
		b.WriteString(l)
	}
	return b.String(), true
}

// fit counts how many whole lines, from the front or the back, fit in budget.
func fit(lines []string, budget int, fromEnd bool) int {
	used := 0
	for i := range lines {
		l := lines[i]
		if fromEnd {
			l = lines[len(lines)-1-i]
		}
		if used+len(l) > budget {
			return i
		}
		used += len(l)
	}
	return len(lines)
}
