package crawlerrole

import (
	"sync"
	"time"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/seen"
)

// CrawlerJob is the per-job record a crawler keeps.
type CrawlerJob struct {
	mu sync.Mutex

	Settings jobspec.JobSettings
	stagers  map[netaddr.Address]struct{}

	receivedURLQuota int64

	seenDB *seen.DB

	// sourceStager remembers, for each queued-or-assigned URL, which stager
	// handed it to this crawler, so JOB_URL_FINISHED names the right
	// queueing-addr for every stager currently attached to the job.
	sourceStager map[string]netaddr.Address

	queue []jobspec.UrlConfig

	running           bool
	lastFetchTime     time.Time
	lastURLIngestTime time.Time

	uploads map[string]*WarcUpload // path -> state
}

func newCrawlerJob(settings jobspec.JobSettings, db *seen.DB) *CrawlerJob {
	return &CrawlerJob{
		Settings:     settings,
		stagers:      make(map[netaddr.Address]struct{}),
		seenDB:       db,
		sourceStager: make(map[string]netaddr.Address),
		uploads:      make(map[string]*WarcUpload),
	}
}

func (j *CrawlerJob) addStager(addr netaddr.Address) {
	j.mu.Lock()
	j.stagers[addr] = struct{}{}
	j.mu.Unlock()
}

func (j *CrawlerJob) stagerSet() map[netaddr.Address]struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[netaddr.Address]struct{}, len(j.stagers))
	for a := range j.stagers {
		out[a] = struct{}{}
	}
	return out
}

// enqueue adds uc to this job's work queue, recording which stager queued
// it so a later finish can be reported back accurately.
func (j *CrawlerJob) enqueue(uc jobspec.UrlConfig, from netaddr.Address) {
	j.mu.Lock()
	j.queue = append(j.queue, uc)
	j.sourceStager[uc.Key()] = from
	j.lastURLIngestTime = time.Now()
	j.mu.Unlock()
}

// gateReady implements the fetch-dispatch gate: a batch is released only
// when URLs are queued, the quota balance has reached its minimum, and one
// of the wait/size thresholds is due.
func (j *CrawlerJob) gateReady(cfg Config) ([]jobspec.UrlConfig, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.queue) == 0 || j.receivedURLQuota < cfg.MinURLQuota {
		return nil, false
	}
	now := time.Now()
	due := now.Sub(j.lastFetchTime) >= cfg.JobMaxWait ||
		now.Sub(j.lastURLIngestTime) >= cfg.JobMaxWaitURLs ||
		len(j.queue) >= cfg.JobMaxURLs
	if !due {
		return nil, false
	}
	n := j.receivedURLQuota
	if int64(len(j.queue)) < n {
		n = int64(len(j.queue))
	}
	batch := j.queue[:n]
	j.queue = append([]jobspec.UrlConfig(nil), j.queue[n:]...)
	j.receivedURLQuota -= n
	j.lastFetchTime = now
	return batch, true
}

// requeue puts a failed batch back at the head of the queue. The quota
// spent on the batch stays spent; the counter regrants it over time while
// the URLs wait to be retried.
func (j *CrawlerJob) requeue(batch []jobspec.UrlConfig) {
	j.mu.Lock()
	j.queue = append(batch, j.queue...)
	j.mu.Unlock()
}

func (j *CrawlerJob) addQuota(n int64) {
	j.mu.Lock()
	j.receivedURLQuota += n
	j.mu.Unlock()
}
