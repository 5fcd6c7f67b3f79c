package crawlerrole

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
)

func testConfig() Config {
	return Config{
		MinURLQuota:    1,
		JobMaxWait:     time.Hour,
		JobMaxWaitURLs: time.Hour,
		JobMaxURLs:     5,
	}
}

func TestGateReadyBlocksOnEmptyQueue(t *testing.T) {
	j := newCrawlerJob(jobspec.JobSettings{}, nil)
	j.addQuota(100)

	_, ready := j.gateReady(testConfig())
	assert.False(t, ready)
}

func TestGateReadyBlocksBelowMinQuota(t *testing.T) {
	j := newCrawlerJob(jobspec.JobSettings{}, nil)
	j.enqueue(jobspec.Seed("job", "https://example.com/"), netaddr.New("127.0.0.1", 3000))
	// receivedURLQuota starts at 0 < cfg.MinURLQuota (1)

	_, ready := j.gateReady(testConfig())
	assert.False(t, ready)
}

func TestGateReadyFiresOnFullBatch(t *testing.T) {
	cfg := testConfig()
	j := newCrawlerJob(jobspec.JobSettings{}, nil)
	j.addQuota(100)
	from := netaddr.New("127.0.0.1", 3000)
	for i := 0; i < cfg.JobMaxURLs; i++ {
		j.enqueue(jobspec.Seed("job", "https://example.com/"), from)
	}

	batch, ready := j.gateReady(cfg)
	require.True(t, ready)
	assert.Len(t, batch, cfg.JobMaxURLs)
	assert.Empty(t, j.queue)
}

func TestGateReadyBatchIsBoundedByQuota(t *testing.T) {
	cfg := testConfig()
	j := newCrawlerJob(jobspec.JobSettings{}, nil)
	j.addQuota(2)
	from := netaddr.New("127.0.0.1", 3000)
	for i := 0; i < cfg.JobMaxURLs; i++ {
		j.enqueue(jobspec.Seed("job", "https://example.com/"), from)
	}

	batch, ready := j.gateReady(cfg)
	require.True(t, ready)
	assert.Len(t, batch, 2, "batch size must never exceed the received quota balance")
	assert.Len(t, j.queue, cfg.JobMaxURLs-2)
	assert.Equal(t, int64(0), j.receivedURLQuota)
}

func TestRequeuePutsBatchBackAtHeadOfQueue(t *testing.T) {
	j := newCrawlerJob(jobspec.JobSettings{}, nil)
	batch := []jobspec.UrlConfig{jobspec.Seed("job", "https://example.com/a")}
	j.enqueue(jobspec.Seed("job", "https://example.com/b"), netaddr.New("127.0.0.1", 3000))

	j.requeue(batch)

	require.Len(t, j.queue, 2)
	assert.Equal(t, "https://example.com/a", j.queue[0].URL, "requeued batch goes back to the head of the queue")
}
