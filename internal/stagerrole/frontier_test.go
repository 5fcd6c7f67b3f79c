package stagerrole

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
)

func urlSet(urls ...string) map[string]jobspec.UrlConfig {
	m := make(map[string]jobspec.UrlConfig, len(urls))
	for _, u := range urls {
		uc := jobspec.Seed("job", u)
		m[uc.Key()] = uc
	}
	return m
}

func totalLen(slices [][]jobspec.UrlConfig) int {
	n := 0
	for _, s := range slices {
		n += len(s)
	}
	return n
}

func TestPartitionPreservesEveryURLExactlyOnce(t *testing.T) {
	m := urlSet("a", "b", "c", "d", "e", "f", "g")
	slices := partition(m, 3)

	assert.Len(t, slices, 3)
	assert.Equal(t, len(m), totalLen(slices))

	seen := make(map[string]bool)
	for _, s := range slices {
		for _, uc := range s {
			assert.False(t, seen[uc.URL], "url %q assigned to more than one slice", uc.URL)
			seen[uc.URL] = true
		}
	}
	assert.Len(t, seen, len(m))
}

func TestPartitionFewerURLsThanSlicesLeavesTrailingEmpty(t *testing.T) {
	m := urlSet("a", "b")
	slices := partition(m, 5)

	assert.Len(t, slices, 5)
	assert.Equal(t, 2, totalLen(slices))
	assert.Empty(t, slices[4])
}

func TestPartitionZeroURLsReturnsAllEmptySlices(t *testing.T) {
	slices := partition(urlSet(), 3)
	assert.Len(t, slices, 3)
	assert.Equal(t, 0, totalLen(slices))
}

func TestSampleStringsKGreaterThanPoolReturnsWholePool(t *testing.T) {
	pool := []string{"a", "b", "c"}
	out := sampleStrings(pool, 5)
	assert.ElementsMatch(t, pool, out)
}

func TestSampleStringsReturnsExactlyKDistinctElements(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e"}
	out := sampleStrings(pool, 2)

	assert.Len(t, out, 2)
	assert.NotEqual(t, out[0], out[1])
	for _, v := range out {
		assert.Contains(t, pool, v)
	}
}
