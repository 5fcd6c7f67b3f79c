package stagerrole

import (
	"math"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
)

func TestGrantFirstCallSeedsWithoutGranting(t *testing.T) {
	j := newStagerJob(jobspec.JobSettings{Rate: 10})
	now := time.Now()

	n := j.grant(now)

	assert.Equal(t, int64(0), n, "the first grant must not charge for time since process start")
	assert.Equal(t, now.UnixNano(), j.lastGrantTime)
}

func TestGrantTotalIsBoundedByElapsedTime(t *testing.T) {
	const rate = 10 // tokens/sec
	j := newStagerJob(jobspec.JobSettings{Rate: rate})

	start := time.Now()
	j.grant(start) // seed

	// The sum of all grants over a window must never exceed
	// ceil(elapsed_seconds * rate) + 1, even when split across many small
	// ticks instead of one big one.
	var total int64
	ticks := 50
	step := 137 * time.Millisecond
	for i := 1; i <= ticks; i++ {
		total += j.grant(start.Add(time.Duration(i) * step))
	}

	elapsedSeconds := float64(ticks) * step.Seconds()
	bound := int64(math.Ceil(elapsedSeconds*rate)) + 1
	require.LessOrEqual(t, total, bound)
}

func TestGrantNeverReturnsNegative(t *testing.T) {
	j := newStagerJob(jobspec.JobSettings{Rate: 10})
	now := time.Now()
	j.grant(now)

	// A clock that appears to move backwards (NTP adjustment) must never
	// produce a negative grant.
	n := j.grant(now.Add(-time.Second))
	assert.GreaterOrEqual(t, n, int64(0))
}

func TestGrantZeroOverZeroElapsed(t *testing.T) {
	j := newStagerJob(jobspec.JobSettings{Rate: 10})
	now := time.Now()
	j.grant(now)

	n := j.grant(now)
	assert.Equal(t, int64(0), n)
}
