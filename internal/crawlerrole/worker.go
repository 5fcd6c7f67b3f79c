package crawlerrole

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/fetch"
	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// workerTick is the per-job worker loop, run on a 1s-scale tick
// (Config.WorkerTick). Each ready job is dispatched onto its own goroutine
// so a slow fetch never blocks the gate check of any other job; concurrent
// fetches are permitted.
func (c *Crawler) workerTick() {
	for id, job := range c.jobsByID() {
		job.mu.Lock()
		running := job.running
		job.mu.Unlock()
		if !running {
			continue
		}
		// Smoothing check happens before the gate takes a batch off the
		// queue: a throttled job simply waits for next tick with its queue
		// and quota untouched, rather than losing work to a skipped
		// dispatch.
		if !c.dispatchLimiter.Allow() {
			break
		}
		batch, ready := job.gateReady(c.cfg)
		if !ready {
			continue
		}
		go c.runFetch(id, job, batch)
	}
}

// randomSuffix10 names a per-fetch working directory uniquely, the same
// UUID-derived disambiguation jobspec.NewSettings uses for job identifiers.
func randomSuffix10() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:10]
}

func (c *Crawler) runFetch(jobID string, job *CrawlerJob, batch []jobspec.UrlConfig) {
	workDir := filepath.Join(c.cfg.CrawlsDir, jobID+"_"+randomSuffix10())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		c.logger.Error("worker: create work dir", zap.Error(err))
		job.requeue(batch)
		return
	}

	urls := make([]string, len(batch))
	for i, uc := range batch {
		urls[i] = uc.URL
	}

	result, err := c.cfg.Driver.Fetch(context.Background(), urls, workDir)
	if err != nil {
		c.logger.Warn("worker: fetch failed, requeuing batch", zap.String("job", jobID), zap.Error(err))
		job.requeue(batch)
		return
	}

	c.reportFinished(jobID, job, batch)
	c.reportDiscoveries(jobID, job, batch, result.Discoveries)
	c.enqueueUploads(jobID, job, workDir)
}

// reportFinished propagates finish events: every input URL is recorded in
// this crawler's seen DB and announced, by its queueing stager's address,
// to every stager currently attached to the job.
func (c *Crawler) reportFinished(jobID string, job *CrawlerJob, batch []jobspec.UrlConfig) {
	stagers := job.stagerSet()
	for _, uc := range batch {
		if job.seenDB != nil {
			if err := job.seenDB.Record(uc); err != nil {
				c.logger.Error("worker: record seen url", zap.Error(err))
			}
		}
		job.mu.Lock()
		queueingAddr, known := job.sourceStager[uc.Key()]
		delete(job.sourceStager, uc.Key())
		job.mu.Unlock()
		if !known {
			continue
		}
		for addr := range stagers {
			if sp, ok := c.node.Registry.Get(addr); ok {
				_ = sp.Send(wire.New("JOB_URL_FINISHED", wire.Str(jobID), wire.Str(uc.URL), wire.Addr(queueingAddr)))
			}
		}
	}
}

// reportDiscoveries filters each (parent, child) pair through the job's
// allow/ignore regexes, depth bound, and seen DB, then sends each
// permitted UrlConfig to one randomly chosen attached stager.
func (c *Crawler) reportDiscoveries(jobID string, job *CrawlerJob, batch []jobspec.UrlConfig, discoveries []fetch.Discovery) {
	parentByURL := make(map[string]jobspec.UrlConfig, len(batch))
	for _, uc := range batch {
		parentByURL[uc.URL] = uc
	}
	stagers := job.stagerSet()

	for _, d := range discoveries {
		parent, ok := parentByURL[d.Parent]
		if !ok {
			continue
		}
		child := jobspec.Child(jobID, d.Child, parent)
		if !job.Settings.WithinDepth(child.Depth) {
			continue
		}
		if !job.Settings.Allowed(child.URL) {
			continue
		}
		if job.seenDB != nil {
			if seenAlready, err := job.seenDB.Seen(child.URL); err == nil && seenAlready {
				continue
			}
		}
		addr, ok := randomStagerOf(stagers)
		if !ok {
			continue
		}
		sp, ok := c.node.Registry.Get(addr)
		if !ok {
			continue
		}
		_ = sp.Send(wire.New("JOB_URL_DISCOVERED", wire.URLConfigVal(child)))
	}
}

// enqueueUploads globs workDir for *.warc.gz files produced by the fetch
// and starts the upload negotiation state machine for each.
func (c *Crawler) enqueueUploads(jobID string, job *CrawlerJob, workDir string) {
	matches, err := filepath.Glob(filepath.Join(workDir, "*.warc.gz"))
	if err != nil {
		c.logger.Error("worker: glob warc files", zap.Error(err))
		return
	}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		c.registerUpload(job, jobID, path, info.Size())
	}
}
