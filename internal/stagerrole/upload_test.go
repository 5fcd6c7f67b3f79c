package stagerrole

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newUploads(maxSpace int64) *uploads {
	return &uploads{reservations: make(map[string]reservation), maxSpace: maxSpace}
}

func TestReserveWithinBudgetSucceeds(t *testing.T) {
	u := newUploads(100)
	assert.True(t, u.reserve("job1", "a.warc.gz", 60))
	assert.Equal(t, int64(40), u.freeSpace())
}

func TestReserveOverBudgetFails(t *testing.T) {
	u := newUploads(100)
	require := assert.New(t)
	require.True(u.reserve("job1", "a.warc.gz", 60))
	require.False(u.reserve("job1", "b.warc.gz", 60), "a second reservation exceeding free_space must be rejected")
	require.Equal(int64(40), u.freeSpace(), "a rejected reservation must not consume space")
}

func TestReleaseFreesSpace(t *testing.T) {
	u := newUploads(100)
	u.reserve("job1", "a.warc.gz", 60)
	u.release("job1", "a.warc.gz")
	assert.Equal(t, int64(100), u.freeSpace())
}

func TestReleaseOfUnknownReservationIsNoOp(t *testing.T) {
	u := newUploads(100)
	u.release("job1", "never-reserved.warc.gz")
	assert.Equal(t, int64(100), u.freeSpace())
}

func TestFreeSpaceNeverGoesNegative(t *testing.T) {
	u := newUploads(10)
	// reservations keyed separately per job/path so both can be inserted
	// directly without going through reserve's own budget check, to exercise
	// freeSpace's clamp independent of reserve's own bookkeeping.
	u.reservations[reservationKey("job1", "a.warc.gz")] = reservation{filesize: 7}
	u.reservations[reservationKey("job1", "b.warc.gz")] = reservation{filesize: 7}
	assert.Equal(t, int64(0), u.freeSpace())
}
