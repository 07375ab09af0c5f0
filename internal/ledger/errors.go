package ledger

import (
	"fmt"
	"time"
)

// RecordError reports a single input record that could not be folded into the ledger.
// Processing continues with the remaining records; callers receive all record errors
// joined with errors.Join and can match the cause with errors.Is.
type RecordError struct {
	Symbol string
	Time   time.Time
	Stage  string // "match" or "statistics"
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %s record at %s: %v", e.Stage, e.Symbol, e.Time.UTC().Format(time.RFC3339), e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// RecordErrors flattens a joined error into its individual record errors,
// in the order they were reported. Errors of other types are returned as-is.
func RecordErrors(err error) []error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*RecordError); ok {
		return []error{err}
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, RecordErrors(e)...)
	}
	return out
}
