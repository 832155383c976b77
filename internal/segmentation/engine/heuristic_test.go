package engine

import (
	"context"
	"strings"
	"testing"

	seg "github.com/veralex/clausebridge-backend/internal/domain/segmentation"
)

const sampleNDA = "MUTUAL NONDISCLOSURE AGREEMENT\n" +
	"1. DEFINITIONS\nConfidential Information means any data disclosed by either party.\n" +
	"2. Obligations. Each party shall protect the other party's information.\n" +
	"\f" +
	"3. Term. This Agreement lasts two years from the effective date.\n" +
	"5. Miscellaneous. Stray numbering on purpose.\n"

func segmentSample(t *testing.T) *Result {
	t.Helper()
	eng := NewHeuristic()
	res, err := eng.Segment(context.Background(), SourceDocument{
		Filename:    "nda.txt",
		ContentType: "text/plain",
		Content:     strings.NewReader(sampleNDA),
	})
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	return res
}

func TestHeuristicPagesAndClauses(t *testing.T) {
	res := segmentSample(t)

	if len(res.Pages) != 2 {
		t.Fatalf("page count = %d, want 2", len(res.Pages))
	}
	if len(res.Clauses) != 4 {
		t.Fatalf("clause count = %d, want 4", len(res.Clauses))
	}

	var full strings.Builder
	for _, p := range res.Pages {
		full.WriteString(p.Text)
	}

	for i, c := range res.Clauses {
		if c.Ordinal != i {
			t.Fatalf("clause %d ordinal = %d", i, c.Ordinal)
		}
		if i+1 < len(res.Clauses) && c.EndChar != res.Clauses[i+1].StartChar {
			t.Fatalf("clause %d not contiguous: end %d, next start %d",
				i, c.EndChar, res.Clauses[i+1].StartChar)
		}
	}
	if last := res.Clauses[len(res.Clauses)-1]; last.EndChar != full.Len() {
		t.Fatalf("last clause ends at %d, text length %d", last.EndChar, full.Len())
	}
}

func TestHeuristicHeadingDetection(t *testing.T) {
	res := segmentSample(t)

	first := res.Clauses[0]
	if first.HeadingText != "DEFINITIONS" {
		t.Fatalf("heading = %q, want DEFINITIONS", first.HeadingText)
	}
	if first.DetectedStyle != seg.StyleHeading {
		t.Fatalf("style = %q, want heading", first.DetectedStyle)
	}

	second := res.Clauses[1]
	if second.HeadingText != "" {
		t.Fatalf("sentence-style clause got heading %q", second.HeadingText)
	}
	if second.DetectedStyle != seg.StyleNumbered {
		t.Fatalf("style = %q, want numbered", second.DetectedStyle)
	}
}

func TestHeuristicFlagsLabelSequenceBreak(t *testing.T) {
	res := segmentSample(t)

	// Clause "5." follows "3.": the numbering jump must be flagged.
	last := res.Clauses[3]
	if last.NumberLabelNorm != "5" {
		t.Fatalf("last label = %q", last.NumberLabelNorm)
	}
	if _, ok := last.AnomalyFlags["label_sequence_break"]; !ok {
		t.Fatalf("numbering jump not flagged: %v", last.AnomalyFlags)
	}
	if last.ConfidenceBoundary >= res.Clauses[0].ConfidenceBoundary {
		t.Fatal("flagged clause is not less confident than clean clauses")
	}

	for _, c := range res.Clauses[:3] {
		if len(c.AnomalyFlags) != 0 {
			t.Fatalf("clean clause %d flagged: %v", c.Ordinal, c.AnomalyFlags)
		}
	}
}

func TestHeuristicPageSpans(t *testing.T) {
	res := segmentSample(t)

	if got := res.Clauses[0].StartPage; got != 1 {
		t.Fatalf("first clause start page = %d", got)
	}
	if got := res.Clauses[2].StartPage; got != 2 {
		t.Fatalf("clause after page break start page = %d", got)
	}
	// Clause "2." ends exactly at the page break, so its span stays on page 1.
	if got := res.Clauses[1].EndPage; got != 1 {
		t.Fatalf("clause ending at page break end page = %d", got)
	}
	if got := res.Clauses[3].EndPage; got != 2 {
		t.Fatalf("last clause end page = %d", got)
	}
}
