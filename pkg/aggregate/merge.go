package aggregate

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
)

var (
	// ErrEmptyChain is returned when there is nothing to merge.
	ErrEmptyChain = errors.New("empty version chain")

	// ErrLengthMismatch is returned when versions and annotations are not
	// parallel.
	ErrLengthMismatch = errors.New("versions and annotations differ in length")
)

// isErrorStatus reports whether a capture counts as an error for merging.
func isErrorStatus(v monitoring.Version) bool {
	return v.Status() >= 300
}

// Merge folds a page's annotations into one.
//
// versionsDesc and annotations are parallel and ordered newest first. When
// both the newest and the oldest capture are healthy, every step touching an
// error capture is left out, so failures inside the window do not inflate
// the change. Otherwise every step is folded.
//
// Hashes keep the first meaningful value in time order, lengths are summed
// and priority is the maximum seen. Priority stays nil if no annotation has
// one.
func Merge(versionsDesc []monitoring.Version, annotations []Annotation) (Annotation, error) {
	n := len(versionsDesc)
	if n == 0 {
		return Annotation{}, ErrEmptyChain
	}
	if len(annotations) != n {
		return Annotation{}, fmt.Errorf("%w: %d versions, %d annotations", ErrLengthMismatch, n, len(annotations))
	}

	skipErrors := !isErrorStatus(versionsDesc[0]) && !isErrorStatus(versionsDesc[n-1])

	// Walk oldest to newest; index n-1 is the oldest.
	merged := copyAnnotation(annotations[n-1])
	prevError := isErrorStatus(versionsDesc[n-1])
	for i := n - 2; i >= 0; i-- {
		curError := isErrorStatus(versionsDesc[i])
		if skipErrors && (curError || prevError) {
			prevError = curError
			continue
		}
		prevError = curError
		fold(&merged, annotations[i])
	}
	return merged, nil
}

// MergeChain derives the annotation of every version and merges them.
func MergeChain(versionsDesc []monitoring.Version) (Annotation, error) {
	annotations := make([]Annotation, len(versionsDesc))
	for i, v := range versionsDesc {
		annotations[i] = AnnotationFor(v)
	}
	return Merge(versionsDesc, annotations)
}

func fold(merged *Annotation, next Annotation) {
	if !MeaningfulHash(merged.SourceDiffHash) {
		merged.SourceDiffHash = next.SourceDiffHash
	}
	if !MeaningfulHash(merged.TextDiffHash) {
		merged.TextDiffHash = next.TextDiffHash
	}

	merged.SourceDiffLength += next.SourceDiffLength
	merged.TextDiffLength += next.TextDiffLength

	if next.Priority != nil {
		current := 0.0
		if merged.Priority != nil {
			current = *merged.Priority
		}
		priority := max(current, *next.Priority)
		merged.Priority = &priority
	}
}

func copyAnnotation(a Annotation) Annotation {
	if a.Priority != nil {
		p := *a.Priority
		a.Priority = &p
	}
	return a
}
