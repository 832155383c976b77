package services

import (
	"strings"
	"testing"
	"time"
)

func TestClauseNeedsReview(t *testing.T) {
	cfg := ReviewConfig{BoundaryThreshold: 0.6, HeadingThreshold: 0.4}

	cases := []struct {
		name         string
		confBoundary float64
		confHeading  float64
		flags        map[string]any
		want         bool
	}{
		{"confident clean clause", 0.9, 0.8, nil, false},
		{"exactly at thresholds", 0.6, 0.4, nil, false},
		{"boundary below threshold", 0.59, 0.8, nil, true},
		{"heading below threshold", 0.9, 0.39, nil, true},
		{"anomaly flag forces review", 0.9, 0.8, map[string]any{"overlap": true}, true},
		{"empty flag map is clean", 0.9, 0.8, map[string]any{}, false},
	}
	for _, tc := range cases {
		got := clauseNeedsReview(tc.confBoundary, tc.confHeading, tc.flags, cfg)
		if got != tc.want {
			t.Errorf("%s: clauseNeedsReview = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSnippetOf(t *testing.T) {
	if got := snippetOf("short", 10); got != "short" {
		t.Fatalf("snippetOf(short) = %q", got)
	}
	long := strings.Repeat("a", 20)
	if got := snippetOf(long, 10); len(got) != 10 {
		t.Fatalf("snippetOf long = %d bytes, want 10", len(got))
	}

	// The cut must never split a multi-byte rune.
	accented := strings.Repeat("é", 10)
	got := snippetOf(accented, 5)
	for _, r := range got {
		if r == '�' {
			t.Fatalf("snippetOf split a rune: %q", got)
		}
	}
}

func TestArtifactKeyDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	a := artifactKey([]byte("clause text"), "txt", at)
	b := artifactKey([]byte("clause text"), "txt", at)
	if a != b {
		t.Fatalf("same content produced different keys: %s vs %s", a, b)
	}
	c := artifactKey([]byte("other text"), "txt", at)
	if a == c {
		t.Fatal("different content produced identical keys")
	}
	if !strings.HasPrefix(a, "2026/03/09/") {
		t.Fatalf("key missing date partition: %s", a)
	}
}

func TestArtifactKeysWritten(t *testing.T) {
	keys := ArtifactKeys{TextConcat: "a", SegmentsArtifact: "c"}
	got := keys.written()
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("written() = %v", got)
	}
	if got := (ArtifactKeys{}).written(); len(got) != 0 {
		t.Fatalf("empty keys written() = %v", got)
	}
}
