package audit

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersSnapshot(t *testing.T) {
	var c Counters
	c.total.Add(5)
	c.audited.Add(4)
	c.modified.Add(2)
	c.skipped.Add(1)
	c.bytesHashed.Add(1024)

	s := c.Snapshot()
	assert.Equal(t, int64(5), s.Total)
	assert.Equal(t, int64(4), s.Audited)
	assert.Equal(t, int64(2), s.Modified)
	assert.Equal(t, int64(1), s.Skipped)
	assert.Equal(t, int64(1024), s.BytesHashed)
}

func TestCountersReport(t *testing.T) {
	var c Counters
	c.total.Add(3)
	c.audited.Add(3)
	c.modified.Add(1)
	c.skipped.Add(1)

	var buf bytes.Buffer
	c.Report(&buf)
	assert.Equal(t, "total=3 audited=3 modified=1 skipped=1\n", buf.String())
}

// Snapshots taken while counters advance concurrently must always be
// internally plausible even if slightly stale.
func TestCountersConcurrentSnapshot(t *testing.T) {
	var c Counters

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.total.Add(1)
			c.audited.Add(1)
		}
	}()

	for i := 0; i < 100; i++ {
		s := c.Snapshot()
		assert.LessOrEqual(t, s.Audited, int64(1000))
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(1000), s.Total)
	assert.Equal(t, int64(1000), s.Audited)
}
