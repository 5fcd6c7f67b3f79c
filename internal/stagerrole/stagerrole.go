// Package stagerrole implements the Stager node role: it holds the
// authoritative frontier for every job it co-owns, assigns URLs to its
// attached crawlers, mirrors slices onto peer stagers as backups, counts
// URL-quota tokens (when elected), and accepts finished WARCs.
//
// The role is wired onto a role-agnostic internal/transport.Node through a
// thin handler-registration pass at construction time; there is no
// inheritance between the roles.
package stagerrole

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// Config carries the stager's tunables: peer-topology bounds, tick
// periods, and storage quotas.
type Config struct {
	MaxStager         int
	MaxBackups        int
	MaxSpace          int64
	WarcDir           string
	NewJobsDir        string
	JobsCheckInterval time.Duration
	IngestInterval    time.Duration
}

// Stager is the node-role object: every job it co-owns, its free-space
// tracker, and the transport node it is wired onto.
type Stager struct {
	node   *transport.Node
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]*StagerJob

	uploadTracker *uploads
}

// New constructs a Stager bound to node and registers every verb handler
// the stager side of the protocol needs. Call node.Run afterward to start
// serving.
func New(node *transport.Node, cfg Config, logger *zap.Logger) *Stager {
	s := &Stager{
		node:   node,
		cfg:    cfg,
		logger: logger.Named("stager"),
		jobs:   make(map[string]*StagerJob),
		uploadTracker: &uploads{
			reservations: make(map[string]reservation),
			maxSpace:     cfg.MaxSpace,
		},
	}
	s.registerHandlers()
	s.scheduleTicks()
	return s
}

// Bootstrap dials addr and performs the stager side of the initial-form
// handshake: ANNOUNCE_STAGER, which the receiving stager answers with
// CONFIRMED and a STAGER_NEW gossip burst for every other stager peer it
// already knows.
func (s *Stager) Bootstrap(addr netaddr.Address) error {
	p, err := s.node.Dial(addr)
	if err != nil {
		return err
	}
	p.SetRole(peer.StagerPeer)
	return p.Send(wire.New("ANNOUNCE_STAGER", wire.Addr(s.node.Self)))
}

func (s *Stager) registerHandlers() {
	n := s.node
	n.Register("ANNOUNCE_STAGER", s.handleAnnounceStager)
	n.Register("ANNOUNCE_STAGER_EXTRA", s.handleAnnounceStagerExtra)
	n.Register("STAGER_NEW", s.handleStagerNew)
	n.Register("REQUEST_STAGER", s.handleRequestStager)
	n.Register("ADD_STAGER", s.handleAddStager)
	n.Register("CONFIRMED", s.handleConfirmed)

	n.Register("ANNOUNCE_CRAWLER", s.handleAnnounceCrawler)
	n.Register("ANNOUNCE_CRAWLER_EXTRA", s.handleAnnounceCrawlerExtra)

	n.Register("NEW_JOB", s.handleNewJob)
	n.Register("NEW_JOB_STAGER", s.handleNewJobStager)
	n.Register("CONFIRMED_JOB", s.handleConfirmedJob)
	n.Register("JOB_SET_COUNTER", s.handleJobSetCounter)
	n.Register("JOB_START", s.handleJobStart)
	n.Register("JOB_STARTED_STAGER", s.handleJobStartedStager)
	n.Register("JOB_STARTED_CRAWL", s.handleJobStartedCrawl)
	n.Register("JOB_CRAWL_CONFIRMED", s.handleJobCrawlConfirmed)

	n.Register("JOB_URL", s.handleJobURL)
	n.Register("JOB_URL_BACKUP", s.handleJobURLBackup)
	n.Register("JOB_URL_FINISHED", s.handleJobURLFinished)
	n.Register("JOB_URL_DISCOVERED", s.handleJobURLDiscovered)

	n.Register("REQUEST_URL_QUOTA", s.handleRequestURLQuota)
	n.Register("REQUEST_URL_QUOTA_CRAWLER", s.handleRequestURLQuotaCrawler)
	n.Register("ASSIGNED_URL_QUOTA_CRAWLER", s.handleAssignedURLQuotaCrawler)

	n.Register("REQUEST_UPLOAD_PERMISSION", s.handleRequestUploadPermission)
	n.Register("REQUEST_UPLOAD_REVOKE", s.handleRequestUploadRevoke)
	n.Register("WARC_FILE", s.handleWarcFile)
}

func (s *Stager) scheduleTicks() {
	sched := s.node.Scheduler()
	if err := transport.Tick(sched, "stager-share-urls", s.cfg.JobsCheckInterval, s.shareURLsAllJobs); err != nil {
		s.logger.Error("schedule share_urls tick", zap.Error(err))
	}
	if err := transport.Tick(sched, "stager-ingest", s.cfg.IngestInterval, s.ingestTick); err != nil {
		s.logger.Error("schedule ingest tick", zap.Error(err))
	}
}

func (s *Stager) job(id string) (*StagerJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *Stager) setJob(id string, j *StagerJob) {
	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()
}

func (s *Stager) allJobs() []*StagerJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*StagerJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// randomStagerPeers returns up to n peers chosen without replacement from
// the node's current stager-peer set; n at or beyond the set size returns a
// copy of the whole set.
func randomStagerPeers(all []*peer.Peer, n int) []*peer.Peer {
	if n >= len(all) {
		out := make([]*peer.Peer, len(all))
		copy(out, all)
		return out
	}
	shuffled := make([]*peer.Peer, len(all))
	copy(shuffled, all)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

func randomCrawlerPeer(all []*peer.Peer) (*peer.Peer, bool) {
	if len(all) == 0 {
		return nil, false
	}
	return all[rand.Intn(len(all))], true
}
