package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNoBars           = errors.New("no bars in feed")
	ErrNonMonotonicBars = errors.New("bar timestamps are not strictly increasing")
	ErrInvalidBar       = errors.New("invalid bar")
	ErrSymbolMismatch   = errors.New("bar symbol does not match feed")
	ErrNoFeeds          = errors.New("job has no feeds")
	ErrNilStrategy      = errors.New("feed has no strategy")
)

// RunError reports an input error that aborted one job.
type RunError struct {
	JobID  string
	Symbol string
	Err    error
}

func (e *RunError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("run %s: %v", e.JobID, e.Err)
	}
	return fmt.Sprintf("run %s [%s]: %v", e.JobID, e.Symbol, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// ConsistencyFault means the sizer, cost model and ledger disagreed, for
// example the ledger was asked to sell more than is settled. It is a bug,
// never a business outcome.
type ConsistencyFault struct {
	JobID  string
	Symbol string
	Err    error
}

func (e *ConsistencyFault) Error() string {
	return fmt.Sprintf("consistency fault in run %s [%s]: %v", e.JobID, e.Symbol, e.Err)
}

func (e *ConsistencyFault) Unwrap() error { return e.Err }

// IsConsistencyFault reports whether err carries a ConsistencyFault.
func IsConsistencyFault(err error) bool {
	var fault *ConsistencyFault
	return errors.As(err, &fault)
}
