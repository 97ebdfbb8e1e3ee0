package report

import "fmt"

// Pipeline stages reported in FatalAggregationError.
const (
	StageValidate      = "validate"
	StageFetchPages    = "fetch pages"
	StageFetchVersions = "fetch versions"
	StageMerge         = "merge"
)

// FatalAggregationError aborts a report run. Err is the underlying request,
// API or parse error.
type FatalAggregationError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *FatalAggregationError) Error() string {
	return fmt.Sprintf("aggregation failed during %s: %v", e.Stage, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FatalAggregationError) Unwrap() error {
	return e.Err
}
