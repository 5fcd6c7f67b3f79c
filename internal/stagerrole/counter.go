package stagerrole

import (
	"math"
	"time"

	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// grant computes a token-bucket grant: floor((now − lastGrantTime) × rate)
// tokens, advancing lastGrantTime to now. The very first call on a freshly
// elected counter has no prior lastGrantTime, so it is seeded to now and
// grants 0 — avoiding a huge unbounded first grant based on time since the
// process started rather than since job-start.
func (j *StagerJob) grant(now time.Time) int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.lastGrantTime == 0 {
		j.lastGrantTime = now.UnixNano()
		return 0
	}
	elapsed := now.UnixNano() - j.lastGrantTime
	n := int64(math.Floor(float64(elapsed) / float64(time.Second) * float64(j.Settings.Rate)))
	if n < 0 {
		n = 0
	}
	j.lastGrantTime = now.UnixNano()
	return n
}

func (s *Stager) handleRequestURLQuota(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	job, ok := s.job(id)
	if !ok {
		return
	}
	job.mu.Lock()
	isCounter := job.isCounter
	counterAddr := job.counterPeer
	job.mu.Unlock()

	if isCounter {
		tokens := job.grant(time.Now())
		_ = p.Send(wire.New("ASSIGNED_URL_QUOTA", wire.Str(id), wire.Int(tokens)))
		return
	}
	// No re-election if counterAddr is no longer in the registry: a
	// vanished counter is left unhandled here and the crawler simply
	// retries on its next quota tick (see DESIGN.md, Open Questions).
	if cp, ok := s.node.Registry.Get(counterAddr); ok {
		_ = cp.Send(wire.New("REQUEST_URL_QUOTA_CRAWLER", wire.Str(id), wire.Addr(p.Declared())))
	}
}

func (s *Stager) handleRequestURLQuotaCrawler(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	crawlerAddr, err := wire.A(msg).Addr(1)
	if err != nil {
		return
	}
	job, ok := s.job(id)
	if !ok {
		return
	}
	tokens := job.grant(time.Now())
	_ = p.Send(wire.New("ASSIGNED_URL_QUOTA_CRAWLER", wire.Str(id), wire.Int(tokens), wire.Addr(crawlerAddr)))
}

func (s *Stager) handleAssignedURLQuotaCrawler(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	tokens, err := wire.A(msg).Int(1)
	if err != nil {
		return
	}
	crawlerAddr, err := wire.A(msg).Addr(2)
	if err != nil {
		return
	}
	cp, ok := s.node.Registry.Get(crawlerAddr)
	if !ok {
		return
	}
	_ = cp.Send(wire.New("ASSIGNED_URL_QUOTA", wire.Str(id), wire.Int(tokens)))
}
