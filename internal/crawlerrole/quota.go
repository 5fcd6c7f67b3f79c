package crawlerrole

import (
	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// requestQuotaTick drives quota acquisition from the crawler side: pick the
// job with the lowest remaining quota balance and ask one of its attached
// stagers, chosen at random, for more.
func (c *Crawler) requestQuotaTick() {
	var lowest *CrawlerJob
	var lowestID string
	var lowestQuota int64
	for id, job := range c.jobsByID() {
		job.mu.Lock()
		q := job.receivedURLQuota
		job.mu.Unlock()
		if lowest == nil || q < lowestQuota {
			lowest, lowestID, lowestQuota = job, id, q
		}
	}
	if lowest == nil {
		return
	}
	addr, ok := randomStagerOf(lowest.stagerSet())
	if !ok {
		return
	}
	sp, ok := c.node.Registry.Get(addr)
	if !ok {
		return
	}
	_ = sp.Send(wire.New("REQUEST_URL_QUOTA", wire.Str(lowestID)))
}

func (c *Crawler) jobsByID() map[string]*CrawlerJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*CrawlerJob, len(c.jobs))
	for id, j := range c.jobs {
		out[id] = j
	}
	return out
}

func (c *Crawler) handleAssignedURLQuota(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	tokens, err := wire.A(msg).Int(1)
	if err != nil {
		return
	}
	job, ok := c.job(id)
	if !ok {
		c.logger.Debug("ASSIGNED_URL_QUOTA: unknown job", zap.String("job", id))
		return
	}
	job.addQuota(tokens)
}
