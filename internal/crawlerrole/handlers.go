package crawlerrole

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/seen"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// handleNewJobCrawl accepts a job broadcast from a stager: open its
// URL-seen database, record the job, and confirm.
func (c *Crawler) handleNewJobCrawl(n *transport.Node, p *peer.Peer, msg wire.Message) {
	settings, err := wire.A(msg).Settings(0)
	if err != nil {
		c.logger.Warn("NEW_JOB_CRAWL: bad settings", zap.Error(err))
		return
	}
	if _, exists := c.job(settings.Identifier); exists {
		_ = p.Send(wire.New("JOB_CRAWL_CONFIRMED", wire.Str(settings.Identifier)))
		return
	}
	dbPath := filepath.Join(c.cfg.SeenDBDir, settings.Identifier+".db")
	db, err := seen.Open(dbPath, settings.Identifier)
	if err != nil {
		c.logger.Error("NEW_JOB_CRAWL: open seen db", zap.Error(err))
		return
	}
	job := newCrawlerJob(settings, db)
	job.addStager(p.Declared())
	c.setJob(settings.Identifier, job)
	_ = p.Send(wire.New("JOB_CRAWL_CONFIRMED", wire.Str(settings.Identifier)))
}

// handleJobSetCounter is a no-op on the crawler side: counter election is
// stager-internal state; the crawler only ever talks to whichever stager
// peer answers REQUEST_URL_QUOTA.
func (c *Crawler) handleJobSetCounter(n *transport.Node, p *peer.Peer, msg wire.Message) {}

func (c *Crawler) handleJobStartCrawl(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	job, ok := c.job(id)
	if !ok {
		return
	}
	job.mu.Lock()
	job.running = true
	job.mu.Unlock()
	_ = p.Send(wire.New("JOB_STARTED_CRAWL", wire.Str(id)))
}

func (c *Crawler) handleJobURLCrawl(n *transport.Node, p *peer.Peer, msg wire.Message) {
	uc, err := wire.A(msg).URLConfig(0)
	if err != nil {
		return
	}
	job, ok := c.job(uc.JobID)
	if !ok {
		c.logger.Debug("JOB_URL_CRAWL: unknown job", zap.String("job", uc.JobID))
		return
	}
	job.addStager(p.Declared())
	if job.seenDB != nil {
		if seenAlready, err := job.seenDB.Seen(uc.URL); err == nil && seenAlready {
			return
		}
	}
	job.enqueue(uc, p.Declared())
}
