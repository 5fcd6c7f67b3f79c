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

func randIndex(n int) int { return rand.Intn(n) }

// --- Membership & gossip ---------------------------------------------------

func (s *Stager) handleAnnounceStager(n *transport.Node, p *peer.Peer, msg wire.Message) {
	addr, err := wire.A(msg).Addr(0)
	if err != nil {
		s.logger.Warn("ANNOUNCE_STAGER: bad address", zap.Error(err))
		return
	}
	initial := msg.Verb == "ANNOUNCE_STAGER"
	n.Registry.Reindex(p, addr)
	p.SetRole(peer.StagerPeer)

	if initial {
		for _, other := range n.Registry.WithRole(peer.StagerPeer) {
			if other == p {
				continue
			}
			_ = p.Send(wire.New("STAGER_NEW", wire.Addr(other.Declared())))
		}
	}
	_ = p.Send(wire.New("CONFIRMED", wire.Int(0)))
}

func (s *Stager) handleAnnounceStagerExtra(n *transport.Node, p *peer.Peer, msg wire.Message) {
	s.handleAnnounceStager(n, p, msg)
}

func (s *Stager) handleStagerNew(n *transport.Node, p *peer.Peer, msg wire.Message) {
	addr, err := wire.A(msg).Addr(0)
	if err != nil {
		return
	}
	if _, known := n.Registry.Get(addr); known {
		return
	}
	// Dial off the dispatch goroutine: handlers must not block on I/O.
	go s.dialStager(addr)
}

func (s *Stager) dialStager(addr netaddr.Address) {
	newPeer, err := s.node.Dial(addr)
	if err != nil {
		s.logger.Debug("gossip dial failed", zap.Stringer("addr", addr), zap.Error(err))
		return
	}
	newPeer.SetRole(peer.StagerPeer)
	_ = newPeer.Send(wire.New("ANNOUNCE_STAGER_EXTRA", wire.Addr(s.node.Self)))
}

func (s *Stager) handleConfirmed(n *transport.Node, p *peer.Peer, msg wire.Message) {
	state, err := wire.A(msg).Int(0)
	if err != nil {
		return
	}
	if state == 0 {
		_ = p.Send(wire.New("CONFIRMED", wire.Int(1)))
	}
	p.SetConfirmed()
}

func (s *Stager) handleRequestStager(n *transport.Node, p *peer.Peer, msg wire.Message) {
	needed, err := wire.A(msg).Int(0)
	if err != nil {
		return
	}
	excludeList, err := wire.A(msg).List(1)
	if err != nil {
		excludeList = nil
	}
	exclude := make(map[netaddr.Address]struct{}, len(excludeList))
	for _, v := range excludeList {
		if a, ok := v.(wire.Addr); ok {
			exclude[netaddr.Address(a)] = struct{}{}
		}
	}
	sent := int64(0)
	for _, other := range n.Registry.WithRole(peer.StagerPeer) {
		if sent >= needed {
			break
		}
		if other == p {
			continue
		}
		if _, excluded := exclude[other.Declared()]; excluded {
			continue
		}
		_ = p.Send(wire.New("ADD_STAGER", wire.Addr(other.Declared())))
		sent++
	}
}

func (s *Stager) handleAddStager(n *transport.Node, p *peer.Peer, msg wire.Message) {
	addr, err := wire.A(msg).Addr(0)
	if err != nil {
		return
	}
	if _, known := n.Registry.Get(addr); known {
		return
	}
	go s.dialStager(addr)
}

func (s *Stager) handleAnnounceCrawler(n *transport.Node, p *peer.Peer, msg wire.Message) {
	addr, err := wire.A(msg).Addr(0)
	if err != nil {
		return
	}
	n.Registry.Reindex(p, addr)
	p.SetRole(peer.CrawlerPeer)
	_ = p.Send(wire.New("CONFIRMED", wire.Int(0)))
	for _, j := range s.allJobs() {
		_ = p.Send(wire.New("NEW_JOB_CRAWL", wire.SettingsVal(j.Settings)))
	}
}

func (s *Stager) handleAnnounceCrawlerExtra(n *transport.Node, p *peer.Peer, msg wire.Message) {
	s.handleAnnounceCrawler(n, p, msg)
}

// --- Job registry & replication --------------------------------------------

func (s *Stager) handleNewJob(n *transport.Node, p *peer.Peer, msg wire.Message) {
	settings, err := wire.A(msg).Settings(0)
	if err != nil {
		s.logger.Warn("NEW_JOB: bad settings", zap.Error(err))
		return
	}
	job := newStagerJob(settings)
	job.IsInitialOwner = false
	job.InitialOwnerPeer = p.Declared()
	s.setJob(settings.Identifier, job)
}

func (s *Stager) handleNewJobStager(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	initialOwner, err := wire.A(msg).Addr(1)
	if err != nil {
		return
	}
	peerList, err := wire.A(msg).List(2)
	if err != nil {
		peerList = nil
	}
	job, ok := s.job(id)
	if !ok {
		_ = p.Send(wire.New("CONFIRMED_JOB", wire.Int(-1), wire.Str(id)))
		return
	}
	var toDial []netaddr.Address
	job.mu.Lock()
	job.InitialOwnerPeer = initialOwner
	for _, v := range peerList {
		a, ok := v.(wire.Addr)
		if !ok {
			continue
		}
		addr := netaddr.Address(a)
		if addr == n.Self {
			continue
		}
		job.ensureStager(addr)
		if _, known := n.Registry.Get(addr); !known {
			toDial = append(toDial, addr)
		}
	}
	job.mu.Unlock()
	for _, addr := range toDial {
		go s.dialStager(addr)
	}

	state := int64(0)
	if job.IsInitialOwner {
		state = 1
	}
	_ = p.Send(wire.New("CONFIRMED_JOB", wire.Int(state), wire.Str(id)))
}

func (s *Stager) handleConfirmedJob(n *transport.Node, p *peer.Peer, msg wire.Message) {
	state, err := wire.A(msg).Int(0)
	if err != nil {
		return
	}
	id, err := wire.A(msg).Str(1)
	if err != nil {
		return
	}
	if state == -1 {
		s.logger.Debug("CONFIRMED_JOB: unknown job, will retry", zap.String("job", id))
		return
	}
	job, ok := s.job(id)
	if !ok {
		return
	}
	job.mu.Lock()
	st := job.ensureStager(p.Declared())
	st.confirmed = true
	allConfirmed := job.IsInitialOwner && job.allStagerPeersConfirmed()
	job.mu.Unlock()

	if allConfirmed {
		s.startJob(job, id)
	}
}

// startJob implements the start barrier: once every co-owner has
// confirmed, the initial owner broadcasts JOB_START. The initial owner also
// forwards JOB_START_CRAWL to its own attached crawlers — co-owners do the
// same when JOB_START reaches them, and without the local leg a job owned by
// a single stager would never start crawling at all.
func (s *Stager) startJob(job *StagerJob, id string) {
	job.mu.Lock()
	if job.running || job.quiescent() {
		job.mu.Unlock()
		return
	}
	job.running = true
	addrs := make([]netaddr.Address, 0, len(job.stagers))
	for a := range job.stagers {
		addrs = append(addrs, a)
	}
	crawlers := make([]*peer.Peer, 0, len(job.crawlers))
	for cp := range job.crawlers {
		crawlers = append(crawlers, cp)
	}
	job.mu.Unlock()

	for _, addr := range addrs {
		if sp, ok := s.node.Registry.Get(addr); ok {
			_ = sp.Send(wire.New("JOB_START", wire.Str(id)))
		}
	}
	for _, cp := range crawlers {
		_ = cp.Send(wire.New("JOB_START_CRAWL", wire.Str(id)))
	}
}

func (s *Stager) handleJobSetCounter(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	counterAddr, err := wire.A(msg).Addr(1)
	if err != nil {
		return
	}
	job, ok := s.job(id)
	if !ok {
		return
	}
	job.mu.Lock()
	job.counterPeer = counterAddr
	job.isCounter = counterAddr == n.Self
	job.mu.Unlock()
}

func (s *Stager) handleJobStart(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	job, ok := s.job(id)
	if !ok {
		return
	}
	job.mu.Lock()
	job.running = true
	crawlers := make([]*peer.Peer, 0, len(job.crawlers))
	for cp := range job.crawlers {
		crawlers = append(crawlers, cp)
	}
	job.mu.Unlock()

	for _, cp := range crawlers {
		_ = cp.Send(wire.New("JOB_START_CRAWL", wire.Str(id)))
	}
}

func (s *Stager) handleJobStartedStager(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	job, ok := s.job(id)
	if !ok {
		return
	}
	job.mu.Lock()
	if st, ok := job.stagers[p.Declared()]; ok {
		st.started = true
	}
	job.mu.Unlock()
}

func (s *Stager) handleJobStartedCrawl(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	job, ok := s.job(id)
	if !ok {
		return
	}
	job.mu.Lock()
	cs := job.ensureCrawler(p)
	cs.started = true
	ready := job.allCrawlersStarted()
	var stagerAddrs map[netaddr.Address]struct{}
	if ready {
		stagerAddrs = make(map[netaddr.Address]struct{}, len(job.stagers))
		for a := range job.stagers {
			stagerAddrs[a] = struct{}{}
		}
	}
	job.mu.Unlock()

	if ready {
		for _, sp := range s.node.Registry.WithRole(peer.StagerPeer) {
			if _, inJob := stagerAddrs[sp.Declared()]; inJob {
				_ = sp.Send(wire.New("JOB_STARTED_STAGER", wire.Str(id)))
			}
		}
	}
}

func (s *Stager) handleJobCrawlConfirmed(n *transport.Node, p *peer.Peer, msg wire.Message) {
	id, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	job, ok := s.job(id)
	if !ok {
		return
	}
	job.mu.Lock()
	job.ensureCrawler(p).confirmed = true
	job.mu.Unlock()
}

// ingestNewJob is called by the ingest loop (ingest.go) once a job
// definition has been loaded from disk. It performs the whole initial-owner
// sequence: pick co-owners, replicate the job, elect the counter, and
// announce the job to every attached crawler.
func (s *Stager) ingestNewJob(settings jobspec.JobSettings) {
	job := newStagerJob(settings)
	job.IsInitialOwner = true
	job.InitialOwnerPeer = s.node.Self
	s.setJob(settings.Identifier, job)

	want := s.cfg.MaxStager - 1
	if want < 0 {
		want = 0
	}
	chosen := randomStagerPeers(s.node.Registry.WithRole(peer.StagerPeer), want)

	job.mu.Lock()
	for _, cp := range chosen {
		job.ensureStager(cp.Declared())
	}
	job.mu.Unlock()

	for _, cp := range chosen {
		_ = cp.Send(wire.New("NEW_JOB", wire.SettingsVal(settings)))
	}
	peerAddrs := make([]wire.Value, 0, len(chosen))
	for _, cp := range chosen {
		peerAddrs = append(peerAddrs, wire.Addr(cp.Declared()))
	}
	for _, cp := range chosen {
		_ = cp.Send(wire.New("NEW_JOB_STAGER", wire.Str(settings.Identifier), wire.Addr(s.node.Self), wire.List(peerAddrs)))
	}

	// Elect a counter: self if there are no co-owners, otherwise a random
	// co-owner, broadcast to every co-owner.
	var counterAddr netaddr.Address
	if len(chosen) == 0 {
		counterAddr = s.node.Self
	} else {
		counterAddr = chosen[randIndex(len(chosen))].Declared()
	}
	job.mu.Lock()
	job.counterPeer = counterAddr
	job.isCounter = counterAddr == s.node.Self
	job.mu.Unlock()
	for _, cp := range chosen {
		_ = cp.Send(wire.New("JOB_SET_COUNTER", wire.Str(settings.Identifier), wire.Addr(counterAddr)))
	}

	for _, cp := range s.node.Registry.WithRole(peer.CrawlerPeer) {
		job.mu.Lock()
		job.ensureCrawler(cp)
		job.mu.Unlock()
		_ = cp.Send(wire.New("NEW_JOB_CRAWL", wire.SettingsVal(settings)))
	}

	// A single-owner job (no co-owners confirm) starts immediately.
	if len(chosen) == 0 {
		s.startJob(job, settings.Identifier)
	}
}

