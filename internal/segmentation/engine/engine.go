// Package engine defines the boundary to the external segmentation
// algorithm. The algorithm is polymorphic over document type and version;
// the core depends only on its input and output shapes, never on any
// classification technique.
package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Version is the semantic version of a segmentation algorithm. It is part
// of run identity: re-running the same version against the same upload is a
// duplicate.
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// SourceDocument is the raw input handed to the engine: the staged bytes
// plus the metadata the upload path already detected.
type SourceDocument struct {
	UploadID    uuid.UUID
	Filename    string
	ContentType string
	Content     io.Reader
}

// Page is one page of extracted text, in document order.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// CandidateClause is one span the engine proposes. Offsets index into the
// concatenation of all page texts (end exclusive).
type CandidateClause struct {
	Ordinal            int
	NumberLabel        string
	NumberLabelNorm    string
	HeadingText        string
	StartChar          int
	EndChar            int
	StartPage          int
	EndPage            int
	TextSnippet        string
	DetectedStyle      string
	ConfidenceBoundary float64
	ConfidenceHeading  float64
	AnomalyFlags       map[string]any
}

// Result is everything a segmentation pass produces.
type Result struct {
	Pages   []Page
	Clauses []CandidateClause
	Metrics map[string]any
}

// Engine is the injected segmentation capability.
type Engine interface {
	Version() Version
	Segment(ctx context.Context, doc SourceDocument) (*Result, error)
}
