package workflow

import (
	"fmt"
	"strings"
)

// Diff change categories reported by `snapraid diff`.
const (
	CategoryAdd    = "add"
	CategoryRemove = "remove"
	CategoryMove   = "move"
	CategoryUpdate = "update"
)

// DiffCounts holds the number of diff lines per change category.
type DiffCounts struct {
	Add    int `json:"add"`
	Remove int `json:"remove"`
	Move   int `json:"move"`
	Update int `json:"update"`
}

// Total returns the number of classified changes.
func (d DiffCounts) Total() int {
	return d.Add + d.Remove + d.Move + d.Update
}

// Map returns the counts keyed by category; every category is present.
func (d DiffCounts) Map() map[string]int {
	return map[string]int{
		CategoryAdd:    d.Add,
		CategoryRemove: d.Remove,
		CategoryMove:   d.Move,
		CategoryUpdate: d.Update,
	}
}

func (d DiffCounts) String() string {
	return fmt.Sprintf("%d added,  %d removed,  %d moved,  %d modified", d.Add, d.Remove, d.Move, d.Update)
}

// ClassifyDiff counts diff output lines by their first whitespace-delimited
// token. Lines starting with anything else (summaries, blank lines) are
// ignored.
func ClassifyDiff(lines []string) DiffCounts {
	var d DiffCounts
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case CategoryAdd:
			d.Add++
		case CategoryRemove:
			d.Remove++
		case CategoryMove:
			d.Move++
		case CategoryUpdate:
			d.Update++
		}
	}
	return d
}
