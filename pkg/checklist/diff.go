package checklist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/synaptica-ai/casereview/pkg/extraction"
)

// DiffOp marks one line of a snapshot diff.
type DiffOp string

const (
	DiffEqual   DiffOp = " "
	DiffAdded   DiffOp = "+"
	DiffRemoved DiffOp = "-"
)

type DiffLine struct {
	Op   DiffOp `json:"op"`
	Text string `json:"text"`
}

// Lines renders the checklist one requirement per line.
func (c Checklist) Lines() []string {
	lines := make([]string, 0, len(c.Fixed)+len(c.Conditional))
	for _, item := range c.Fixed {
		mark := " "
		if item.IsPresent {
			mark = "x"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", mark, item.Name))
	}
	for _, item := range c.Conditional {
		lines = append(lines, fmt.Sprintf("%s: %s", item.Name, item.ConditionalStatus))
	}
	return lines
}

// DiffSnapshot compares the checklist recorded with a decision against the
// current one. Snapshots that are not checklists are compared as flattened
// key/value text.
func DiffSnapshot(then json.RawMessage, now Checklist) ([]DiffLine, error) {
	before, err := snapshotLines(then)
	if err != nil {
		return nil, err
	}
	return diffLines(before, now.Lines()), nil
}

// Changed reports whether any line differs.
func Changed(lines []DiffLine) bool {
	for _, l := range lines {
		if l.Op != DiffEqual {
			return true
		}
	}
	return false
}

func snapshotLines(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var c Checklist
	if err := json.Unmarshal(raw, &c); err == nil && (len(c.Fixed) > 0 || len(c.Conditional) > 0) {
		return c.Lines(), nil
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decoding checklist snapshot: %w", err)
	}
	pairs := extraction.Flatten(generic)
	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		lines = append(lines, p.Key+": "+p.Value)
	}
	return lines, nil
}

func diffLines(before, after []string) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(joinLines(before), joinLines(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table)

	var out []DiffLine
	for _, d := range diffs {
		op := DiffEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = DiffAdded
		case diffmatchpatch.DiffDelete:
			op = DiffRemoved
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, DiffLine{Op: op, Text: line})
		}
	}
	return out
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
