package merge

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// ConflictDiff is a human-readable rendering of one ConflictPair: a
// unified diff between the two calls' Parameters JSON, plus the added
// and removed line counts.
type ConflictDiff struct {
	Address     uint64
	FirstID     int64
	SecondID    int64
	FirstAgent  string
	SecondAgent string
	FirstTool   string
	SecondTool  string
	DiffText    string
	Additions   int
	Deletions   int
}

// DiffConflict renders the parameter diff between the two calls in a
// ConflictPair, so an operator can see exactly what each agent wrote to
// the same address before the merge engine had to pick one.
func DiffConflict(pair types.ConflictPair) ConflictDiff {
	before := pair.FirstCall.Parameters
	after := pair.SecondCall.Parameters

	cd := ConflictDiff{
		Address:     pair.FirstCall.Address,
		FirstID:     pair.FirstCall.ID,
		SecondID:    pair.SecondCall.ID,
		FirstAgent:  pair.FirstCall.AgentID,
		SecondAgent: pair.SecondCall.AgentID,
		FirstTool:   pair.FirstCall.ToolName,
		SecondTool:  pair.SecondCall.ToolName,
	}

	if before == after {
		return cd
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			cd.Additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			cd.Deletions += countLines(d.Text)
		}
	}

	patches := dmp.PatchMake(before, diffs)
	diffText := dmp.PatchToText(patches)
	if diffText == "" {
		return cd
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("--- call %d (%s, %s)\n", pair.FirstCall.ID, pair.FirstCall.AgentID, pair.FirstCall.ToolName))
	b.WriteString(fmt.Sprintf("+++ call %d (%s, %s)\n", pair.SecondCall.ID, pair.SecondCall.AgentID, pair.SecondCall.ToolName))
	b.WriteString(diffText)
	cd.DiffText = b.String()

	return cd
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
