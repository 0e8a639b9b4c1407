package audit

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/fabacab/chkrelease/pkg/chkrelease/types"
)

// Counters holds the run's tallies. Every field is updated atomically at
// a step boundary, so a Snapshot taken from another goroutine (the signal
// reporter) only ever observes committed values and always satisfies
// skipped <= audited <= total.
type Counters struct {
	total       atomic.Int64
	audited     atomic.Int64
	modified    atomic.Int64
	skipped     atomic.Int64
	bytesHashed atomic.Int64
}

// Snapshot returns a point-in-time copy of the counters.
func (c *Counters) Snapshot() types.Snapshot {
	return types.Snapshot{
		Total:       c.total.Load(),
		Audited:     c.audited.Load(),
		Modified:    c.modified.Load(),
		Skipped:     c.skipped.Load(),
		BytesHashed: c.bytesHashed.Load(),
	}
}

// Report writes the four totals to w in fixed order. It is the single
// formatting point for both the end-of-run totals and asynchronous
// progress requests, and is safe to call at any time.
func (c *Counters) Report(w io.Writer) {
	s := c.Snapshot()
	fmt.Fprintf(w, "total=%d audited=%d modified=%d skipped=%d\n",
		s.Total, s.Audited, s.Modified, s.Skipped)
}
