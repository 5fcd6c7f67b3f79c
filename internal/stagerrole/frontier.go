package stagerrole

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// shareURLsAllJobs redistributes the frontier of every job this stager
// owns, on the jobs-check tick.
func (s *Stager) shareURLsAllJobs() {
	for id, job := range s.jobsByID() {
		s.shareURLs(id, job)
	}
}

func (s *Stager) jobsByID() map[string]*StagerJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*StagerJob, len(s.jobs))
	for id, j := range s.jobs {
		out[id] = j
	}
	return out
}

// shareURLs partitions the job's discovered URLs into one slice per
// co-owner stager plus one local slice, distributes each, and fans out
// backups. Zero discovered URLs is a no-op; fewer discovered URLs than
// slices distributes as much as possible and leaves trailing slices empty.
func (s *Stager) shareURLs(id string, job *StagerJob) {
	job.mu.Lock()
	if len(job.discoveredURLs) == 0 {
		job.mu.Unlock()
		return
	}
	stagerAddrs := make([]netaddr.Address, 0, len(job.stagers))
	for a := range job.stagers {
		stagerAddrs = append(stagerAddrs, a)
	}
	slices := partition(job.discoveredURLs, len(stagerAddrs)+1)
	job.discoveredURLs = make(map[string]jobspec.UrlConfig)
	job.mu.Unlock()

	// Slice 0 is owned by this node; slice i+1 by stagerAddrs[i]. Backup
	// targets per slice are sampled from this node plus the co-owners minus
	// the slice's owner, and every backup message carries the owner's
	// address: backup slots are keyed by the owning stager so that on owner
	// failure the backups collectively hold its slice.
	for i, slice := range slices {
		if len(slice) == 0 {
			continue
		}
		local := i == 0
		owner := s.node.Self
		if !local {
			owner = stagerAddrs[i-1]
		}

		pool := make([]string, 0, len(stagerAddrs)+1)
		if !local {
			pool = append(pool, "self")
		}
		for _, a := range stagerAddrs {
			if a != owner {
				pool = append(pool, a.String())
			}
		}
		backups := sampleStrings(pool, s.cfg.MaxBackups)

		if local {
			s.placeLocal(job, slice)
		} else {
			s.sendSlice(id, owner, slice)
		}

		for _, target := range backups {
			if target == "self" {
				job.mu.Lock()
				m, ok := job.backup[owner]
				if !ok {
					m = make(map[string]jobspec.UrlConfig)
					job.backup[owner] = m
				}
				for _, uc := range slice {
					m[uc.Key()] = uc
				}
				job.mu.Unlock()
				continue
			}
			addr, err := netaddr.Parse(target)
			if err != nil {
				continue
			}
			sp, ok := s.node.Registry.Get(addr)
			if !ok {
				continue
			}
			for _, uc := range slice {
				_ = sp.Send(wire.New("JOB_URL_BACKUP", wire.URLConfigVal(uc), wire.Addr(owner)))
			}
		}
	}
}

// placeLocal synthesizes JOB_URL locally for every URL in slice, assigning
// it to one of this stager's attached crawlers.
func (s *Stager) placeLocal(job *StagerJob, slice []jobspec.UrlConfig) {
	for _, uc := range slice {
		s.assignToLocalCrawler(job, uc)
	}
}

func (s *Stager) assignToLocalCrawler(job *StagerJob, uc jobspec.UrlConfig) {
	job.mu.Lock()
	defer job.mu.Unlock()

	crawlers := make([]*peer.Peer, 0, len(job.crawlers))
	for cp := range job.crawlers {
		crawlers = append(crawlers, cp)
	}
	cp, ok := randomCrawlerPeer(crawlers)
	if !ok {
		// No crawler attached yet — put it back in the frontier for the
		// next tick rather than dropping it.
		job.discoveredURLs[uc.Key()] = uc
		return
	}
	job.currentURLs[uc.Key()] = uc
	job.currentOwner[uc.Key()] = cp
	job.ensureCrawler(cp).assigned[uc.Key()] = struct{}{}
	_ = cp.Send(wire.New("JOB_URL_CRAWL", wire.URLConfigVal(uc)))
}

func (s *Stager) sendSlice(id string, addr netaddr.Address, slice []jobspec.UrlConfig) {
	sp, ok := s.node.Registry.Get(addr)
	if !ok {
		return
	}
	for _, uc := range slice {
		_ = sp.Send(wire.New("JOB_URL", wire.URLConfigVal(uc)))
	}
}

// partition splits m into n near-equal slices, greedy and
// order-insensitive. Map iteration order is already unspecified in Go, so
// no extra shuffling is needed.
func partition(m map[string]jobspec.UrlConfig, n int) [][]jobspec.UrlConfig {
	if n <= 0 {
		n = 1
	}
	all := make([]jobspec.UrlConfig, 0, len(m))
	for _, uc := range m {
		all = append(all, uc)
	}
	out := make([][]jobspec.UrlConfig, n)
	chunk := (len(all) + n - 1) / n
	if chunk == 0 {
		chunk = 1
	}
	for i := 0; i < n; i++ {
		start := i * chunk
		if start >= len(all) {
			out[i] = nil
			continue
		}
		end := start + chunk
		if end > len(all) {
			end = len(all)
		}
		out[i] = all[start:end]
	}
	return out
}

// sampleStrings picks k elements without replacement; k at or beyond the
// pool size returns a copy of the whole pool.
func sampleStrings(pool []string, k int) []string {
	if k >= len(pool) {
		out := make([]string, len(pool))
		copy(out, pool)
		return out
	}
	shuffled := make([]string, len(pool))
	copy(shuffled, pool)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:k]
}

// --- Handlers for URL placement & finish/discovery propagation -------------

func (s *Stager) handleJobURL(n *transport.Node, p *peer.Peer, msg wire.Message) {
	uc, err := wire.A(msg).URLConfig(0)
	if err != nil {
		return
	}
	job, ok := s.job(uc.JobID)
	if !ok {
		return
	}
	s.assignToLocalCrawler(job, uc)
}

// handleJobURLBackup records a frontier URL this stager holds only as a
// backup for owner. Nothing here promotes this stager to owner if owner
// later drops out of the registry; the slice is simply retained until an
// operator starts a new job against it (see DESIGN.md, Open Questions).
func (s *Stager) handleJobURLBackup(n *transport.Node, p *peer.Peer, msg wire.Message) {
	uc, err := wire.A(msg).URLConfig(0)
	if err != nil {
		return
	}
	owner, err := wire.A(msg).Addr(1)
	if err != nil {
		return
	}
	job, ok := s.job(uc.JobID)
	if !ok {
		return
	}
	job.mu.Lock()
	m, ok := job.backup[owner]
	if !ok {
		m = make(map[string]jobspec.UrlConfig)
		job.backup[owner] = m
	}
	m[uc.Key()] = uc
	job.mu.Unlock()
}

func (s *Stager) handleJobURLFinished(n *transport.Node, p *peer.Peer, msg wire.Message) {
	jobID, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	url, err := wire.A(msg).Str(1)
	if err != nil {
		return
	}
	queueingAddr, err := wire.A(msg).Addr(2)
	if err != nil {
		return
	}
	job, ok := s.job(jobID)
	if !ok {
		return
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	if queueingAddr == n.Self {
		delete(job.currentURLs, url)
		if cp, ok := job.currentOwner[url]; ok {
			if cs, ok := job.crawlers[cp]; ok {
				delete(cs.assigned, url)
			}
			delete(job.currentOwner, url)
		}
		return
	}
	if m, ok := job.backup[queueingAddr]; ok {
		delete(m, url)
	}
}

func (s *Stager) handleJobURLDiscovered(n *transport.Node, p *peer.Peer, msg wire.Message) {
	uc, err := wire.A(msg).URLConfig(0)
	if err != nil {
		return
	}
	job, ok := s.job(uc.JobID)
	if !ok {
		s.logger.Debug("JOB_URL_DISCOVERED: unknown job", zap.String("job", uc.JobID))
		return
	}
	job.addDiscovered(uc)
}
