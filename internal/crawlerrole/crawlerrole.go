// Package crawlerrole implements the Crawler node role: it attaches to one
// or more stagers, receives URL assignments and quota grants, runs the
// fetch driver against them, and negotiates uploading finished WARCs back
// to a stager.
//
// Wired onto internal/transport.Node the same way internal/stagerrole is —
// a handler-registration pass at construction time, no inheritance between
// the roles.
package crawlerrole

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ArchiveTeam/WebArchiver/internal/fetch"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// Config carries the crawler-side tunables: topology bounds, tick periods,
// fetch-gate thresholds, and the fetch backend.
type Config struct {
	MaxStager int

	RequestStagerInterval time.Duration
	URLQuotaInterval      time.Duration
	RequestUploadInterval time.Duration
	WorkerTick            time.Duration

	MinURLQuota    int64
	JobMaxWait     time.Duration
	JobMaxWaitURLs time.Duration
	JobMaxURLs     int

	CrawlsDir string
	SeenDBDir string

	Driver fetch.Driver

	// DispatchRate and DispatchBurst bound how many fetch dispatches per
	// second the worker tick will start across all jobs combined — a local
	// smoothing detail, not part of the replicated protocol and independent
	// of the counter's own token-bucket arithmetic, which stays exact.
	DispatchRate  float64
	DispatchBurst int
}

// Crawler is the node-role object: every job it has been told about, and
// the transport node it is wired onto.
type Crawler struct {
	node   *transport.Node
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]*CrawlerJob

	dispatchLimiter *rate.Limiter
}

// New constructs a Crawler bound to node and registers every verb handler
// the crawler side of the protocol needs. Call node.Run afterward to start
// serving.
func New(node *transport.Node, cfg Config, logger *zap.Logger) *Crawler {
	dispatchRate := cfg.DispatchRate
	if dispatchRate <= 0 {
		dispatchRate = 4
	}
	dispatchBurst := cfg.DispatchBurst
	if dispatchBurst <= 0 {
		dispatchBurst = 4
	}
	c := &Crawler{
		node:            node,
		cfg:             cfg,
		logger:          logger.Named("crawler"),
		jobs:            make(map[string]*CrawlerJob),
		dispatchLimiter: rate.NewLimiter(rate.Limit(dispatchRate), dispatchBurst),
	}
	c.registerHandlers()
	c.scheduleTicks()
	return c
}

func (c *Crawler) registerHandlers() {
	n := c.node
	n.Register("CONFIRMED", c.handleConfirmed)
	n.Register("ADD_STAGER", c.handleAddStager)

	n.Register("NEW_JOB_CRAWL", c.handleNewJobCrawl)
	n.Register("JOB_SET_COUNTER", c.handleJobSetCounter)
	n.Register("JOB_START_CRAWL", c.handleJobStartCrawl)
	n.Register("JOB_URL_CRAWL", c.handleJobURLCrawl)

	n.Register("ASSIGNED_URL_QUOTA", c.handleAssignedURLQuota)

	n.Register("UPLOAD_PERMISSION_GRANTED", c.handleUploadPermissionGranted)
	n.Register("UPLOAD_PERMISSION_DENIED", c.handleUploadPermissionDenied)
	n.Register("WARC_FILE_RECEIVED", c.handleWarcFileReceived)
}

func (c *Crawler) scheduleTicks() {
	sched := c.node.Scheduler()
	if err := transport.Tick(sched, "crawler-request-stager", c.cfg.RequestStagerInterval, c.requestStagerTick); err != nil {
		c.logger.Error("schedule request_stager tick", zap.Error(err))
	}
	if err := transport.Tick(sched, "crawler-url-quota", c.cfg.URLQuotaInterval, c.requestQuotaTick); err != nil {
		c.logger.Error("schedule url_quota tick", zap.Error(err))
	}
	if err := transport.Tick(sched, "crawler-worker", c.cfg.WorkerTick, c.workerTick); err != nil {
		c.logger.Error("schedule worker tick", zap.Error(err))
	}
	if err := transport.Tick(sched, "crawler-upload", c.cfg.RequestUploadInterval, c.uploadTick); err != nil {
		c.logger.Error("schedule upload tick", zap.Error(err))
	}
}

// Bootstrap dials addr and performs the crawler side of the handshake:
// ANNOUNCE_CRAWLER if this is the first stager peer,
// ANNOUNCE_CRAWLER_EXTRA otherwise.
func (c *Crawler) Bootstrap(addr netaddr.Address) error {
	p, err := c.node.Dial(addr)
	if err != nil {
		return err
	}
	p.SetRole(peer.StagerPeer)
	verb := "ANNOUNCE_CRAWLER"
	if len(c.node.Registry.WithRole(peer.StagerPeer)) > 1 {
		verb = "ANNOUNCE_CRAWLER_EXTRA"
	}
	return p.Send(wire.New(verb, wire.Addr(c.node.Self)))
}

func (c *Crawler) job(id string) (*CrawlerJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	return j, ok
}

func (c *Crawler) setJob(id string, j *CrawlerJob) {
	c.mu.Lock()
	c.jobs[id] = j
	c.mu.Unlock()
}

func randIndexN(n int) int { return rand.Intn(n) }

func randomStagerOf(addrs map[netaddr.Address]struct{}) (netaddr.Address, bool) {
	if len(addrs) == 0 {
		return netaddr.Address{}, false
	}
	pick := rand.Intn(len(addrs))
	i := 0
	for a := range addrs {
		if i == pick {
			return a, true
		}
		i++
	}
	return netaddr.Address{}, false
}
