package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDiff_Empty(t *testing.T) {
	got := ClassifyDiff(nil)
	assert.Equal(t, DiffCounts{}, got)
	assert.Equal(t, map[string]int{"add": 0, "remove": 0, "move": 0, "update": 0}, got.Map())
}

func TestClassifyDiff_Counts(t *testing.T) {
	got := ClassifyDiff([]string{"add a", "add b", "remove c"})
	assert.Equal(t, DiffCounts{Add: 2, Remove: 1}, got)
	assert.Equal(t, 3, got.Total())
}

func TestClassifyDiff_IgnoresOtherLines(t *testing.T) {
	lines := []string{
		"Loading state from /mnt/parity/snapraid.content...",
		"Comparing...",
		"",
		"   ",
		"move photos/a.jpg -> photos/b.jpg",
		"update docs/report.pdf",
		"restore x",
		"added y",
		"    1234 equal",
		"       1 added",
		"There are differences!",
		"remove\tmusic/song.mp3",
	}
	got := ClassifyDiff(lines)
	assert.Equal(t, DiffCounts{Remove: 1, Move: 1, Update: 1}, got)

	nonEmpty := 0
	for _, l := range lines {
		if len(l) > 0 {
			nonEmpty++
		}
	}
	assert.LessOrEqual(t, got.Total(), nonEmpty)
}

func TestDiffCounts_String(t *testing.T) {
	d := DiffCounts{Add: 1, Remove: 2, Move: 3, Update: 4}
	assert.Equal(t, "1 added,  2 removed,  3 moved,  4 modified", d.String())
}
