package engine

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	seg "github.com/veralex/clausebridge-backend/internal/domain/segmentation"
)

var (
	numberedStart = regexp.MustCompile(`(?m)^\s*(\d+(?:\.\d+)*)[.)]\s+`)
	headingLine   = regexp.MustCompile(`^[A-Z][A-Z0-9 ,&'()\-]{3,}$`)
)

// Heuristic is the baseline plain-text segmenter. It splits pages on form
// feeds and opens a clause at every numbered-label line. It exists so the
// pipeline runs end to end without an external classifier; production
// deployments inject their own Engine.
type Heuristic struct {
	version Version
}

func NewHeuristic() *Heuristic {
	return &Heuristic{version: Version{Major: 0, Minor: 3, Patch: 0}}
}

func (h *Heuristic) Version() Version { return h.version }

func (h *Heuristic) Segment(ctx context.Context, doc SourceDocument) (*Result, error) {
	raw, err := io.ReadAll(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := string(raw)
	pages := splitPages(text)

	// Offsets index into the concatenation of page texts, which for this
	// splitter is the original text minus the form feed separators.
	var concat strings.Builder
	for _, p := range pages {
		concat.WriteString(p.Text)
	}
	full := concat.String()

	clauses := h.propose(full, pages)
	return &Result{
		Pages:   pages,
		Clauses: clauses,
		Metrics: map[string]any{
			"engine":     "heuristic",
			"pages":      len(pages),
			"candidates": len(clauses),
		},
	}, nil
}

func splitPages(text string) []Page {
	parts := strings.Split(text, "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, Page{Number: i + 1, Text: part})
	}
	return pages
}

func (h *Heuristic) propose(full string, pages []Page) []CandidateClause {
	starts := numberedStart.FindAllStringSubmatchIndex(full, -1)
	if len(starts) == 0 {
		return nil
	}

	clauses := make([]CandidateClause, 0, len(starts))
	prevTop := 0
	for i, m := range starts {
		start := m[0]
		end := len(full)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		label := full[m[2]:m[3]]
		body := full[start:end]

		c := CandidateClause{
			Ordinal:            i,
			NumberLabel:        full[m[0]:m[1]],
			NumberLabelNorm:    label,
			HeadingText:        headingOf(body),
			StartChar:          start,
			EndChar:            end,
			StartPage:          pageAt(pages, start),
			EndPage:            pageAt(pages, end-1),
			TextSnippet:        strings.TrimSpace(body),
			DetectedStyle:      styleOf(body),
			ConfidenceBoundary: 0.9,
			ConfidenceHeading:  0.5,
		}
		if c.HeadingText != "" {
			c.ConfidenceHeading = 0.85
		}

		// Top-level labels should count up by one; a jump or repeat is a
		// boundary anomaly worth a human look.
		top := topLevel(label)
		if top > 0 {
			if prevTop > 0 && top != prevTop+1 {
				c.ConfidenceBoundary = 0.45
				c.AnomalyFlags = map[string]any{"label_sequence_break": true}
			}
			prevTop = top
		}

		clauses = append(clauses, c)
	}
	return clauses
}

func headingOf(body string) string {
	line := body
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = numberedStart.ReplaceAllString(line, "")
	line = strings.TrimSuffix(strings.TrimSpace(line), ".")
	if headingLine.MatchString(line) {
		return line
	}
	return ""
}

func styleOf(body string) string {
	if headingOf(body) != "" {
		return seg.StyleHeading
	}
	return seg.StyleNumbered
}

func topLevel(label string) int {
	head := label
	if idx := strings.IndexByte(head, '.'); idx >= 0 {
		head = head[:idx]
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}

func pageAt(pages []Page, offset int) int {
	pos := 0
	for _, p := range pages {
		pos += len(p.Text)
		if offset < pos {
			return p.Number
		}
	}
	if len(pages) == 0 {
		return 1
	}
	return pages[len(pages)-1].Number
}
