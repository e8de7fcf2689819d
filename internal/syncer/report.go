package syncer

import (
	"fmt"
	"time"

	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/fetch"
)

// Outcome is the result of one descriptor.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Reasons recorded by the synchronizer itself, next to the fetch reasons.
const (
	ReasonAlreadyPresent fetch.Reason = "already-present"
	ReasonWriteFailed    fetch.Reason = "write-failed"
)

// Result holds the outcome of one descriptor.
type Result struct {
	Descriptor config.Descriptor
	Name       string // final destination name
	Path       string // absolute destination path
	Outcome    Outcome
	Size       int64        // bytes written, Success only
	Reason     fetch.Reason // Skipped and Failed only
	Err        error        // Failed only
	Attempts   int          // fetch invocations
}

func (r Result) String() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("%s: success (%d bytes)", r.Name, r.Size)
	case OutcomeSkipped:
		return fmt.Sprintf("%s: skipped (%s)", r.Name, r.Reason)
	default:
		return fmt.Sprintf("%s: failed (%s)", r.Name, r.Reason)
	}
}

// Counts tallies results per outcome.
type Counts struct {
	Success int
	Skipped int
	Failed  int
}

// Report is the ledger of one synchronization run. Results are in input
// order.
type Report struct {
	RunID       string
	Destination string
	Results     []Result
	StartedAt   time.Time
	Duration    time.Duration
}

// Counts returns the number of results per outcome.
func (r *Report) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeSuccess:
			c.Success++
		case OutcomeSkipped:
			c.Skipped++
		case OutcomeFailed:
			c.Failed++
		}
	}
	return c
}

// Bytes returns the total size written.
func (r *Report) Bytes() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.Size
	}
	return n
}

// Failed returns the failed results.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}
