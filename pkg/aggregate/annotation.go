package aggregate

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
)

// UnknownHash stands in for a diff hash the capture source did not report.
const UnknownHash = "?"

// Hashes of diffs that show no visible change: the empty document and the
// empty change list.
var (
	EmptyDiffHash     = sha256Hex("")
	EmptyListDiffHash = sha256Hex("[]")
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Annotation summarizes one diff, or a chain of diffs once merged.
type Annotation struct {
	SourceDiffLength int      `json:"source_diff_length"`
	SourceDiffHash   string   `json:"source_diff_hash"`
	TextDiffLength   int      `json:"text_diff_length"`
	TextDiffHash     string   `json:"text_diff_hash"`
	Priority         *float64 `json:"priority,omitempty"`
}

// AnnotationFor derives the annotation of a single version.
func AnnotationFor(v monitoring.Version) Annotation {
	meta := v.SourceMetadata
	a := Annotation{
		SourceDiffLength: max(meta.DiffLength, 0),
		SourceDiffHash:   UnknownHash,
		TextDiffLength:   max(meta.TextDiffLength, 0),
		TextDiffHash:     UnknownHash,
	}
	if meta.DiffHash != nil {
		a.SourceDiffHash = *meta.DiffHash
	}
	if meta.TextDiffHash != nil {
		a.TextDiffHash = *meta.TextDiffHash
	}
	if p := v.Priority(); p != nil {
		priority := *p
		a.Priority = &priority
	}
	return a
}

// MeaningfulHash reports whether h identifies a visible change.
func MeaningfulHash(h string) bool {
	switch h {
	case "", UnknownHash, EmptyDiffHash, EmptyListDiffHash:
		return false
	}
	return true
}
