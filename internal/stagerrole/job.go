package stagerrole

import (
	"sync"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/peer"
)

// crawlerState is the per-crawler bookkeeping a StagerJob keeps: handshake
// and lifecycle flags plus the set of URLs currently assigned to that
// crawler.
type crawlerState struct {
	confirmed bool
	started   bool
	finished  bool
	assigned  map[string]struct{} // URL -> member of this crawler's current batch
}

// stagerState mirrors crawlerState for the other co-owner stagers of a job.
type stagerState struct {
	confirmed bool
	started   bool
	finished  bool
}

// StagerJob is the per-job record a stager keeps for every job it co-owns.
type StagerJob struct {
	mu sync.Mutex

	Settings         jobspec.JobSettings
	IsInitialOwner   bool
	InitialOwnerPeer netaddr.Address

	discoveredURLs map[string]jobspec.UrlConfig
	currentURLs    map[string]jobspec.UrlConfig
	// currentOwner maps a URL in currentURLs to the crawler peer it was
	// assigned to, so a finish event can clear the crawler's assignment set.
	currentOwner map[string]*peer.Peer

	crawlers map[*peer.Peer]*crawlerState
	stagers  map[netaddr.Address]*stagerState

	// backup holds, for every other owning stager's address, the slice of
	// URLs this node is mirroring on that stager's behalf.
	backup map[netaddr.Address]map[string]jobspec.UrlConfig

	// isCounter is true when this node was elected the URL-quota counter
	// for this job; counterPeer names the elected peer otherwise.
	isCounter     bool
	counterPeer   netaddr.Address
	lastGrantTime int64 // unix nanos, set on first grant

	running bool

	// Free-space tracking lives on the Stager, not per job: the storage
	// budget is a node-wide scalar, not scoped to one job.
}

func newStagerJob(settings jobspec.JobSettings) *StagerJob {
	j := &StagerJob{
		Settings:       settings,
		discoveredURLs: make(map[string]jobspec.UrlConfig, len(settings.URLs)),
		currentURLs:    make(map[string]jobspec.UrlConfig),
		currentOwner:   make(map[string]*peer.Peer),
		crawlers:       make(map[*peer.Peer]*crawlerState),
		stagers:        make(map[netaddr.Address]*stagerState),
		backup:         make(map[netaddr.Address]map[string]jobspec.UrlConfig),
	}
	for _, u := range settings.URLs {
		uc := jobspec.Seed(settings.Identifier, u)
		j.discoveredURLs[uc.Key()] = uc
	}
	return j
}

func (j *StagerJob) addDiscovered(uc jobspec.UrlConfig) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.discoveredURLs[uc.Key()] = uc
}

func (j *StagerJob) ensureStager(addr netaddr.Address) *stagerState {
	st, ok := j.stagers[addr]
	if !ok {
		st = &stagerState{}
		j.stagers[addr] = st
	}
	return st
}

func (j *StagerJob) ensureCrawler(p *peer.Peer) *crawlerState {
	cs, ok := j.crawlers[p]
	if !ok {
		cs = &crawlerState{assigned: make(map[string]struct{})}
		j.crawlers[p] = cs
	}
	return cs
}

// allStagerPeersConfirmed reports whether every co-owner has confirmed —
// the start barrier's first half.
func (j *StagerJob) allStagerPeersConfirmed() bool {
	for _, st := range j.stagers {
		if !st.confirmed {
			return false
		}
	}
	return true
}

func (j *StagerJob) allStagerPeersStarted() bool {
	for _, st := range j.stagers {
		if !st.started {
			return false
		}
	}
	return true
}

func (j *StagerJob) allCrawlersStarted() bool {
	for _, cs := range j.crawlers {
		if !cs.started {
			return false
		}
	}
	return true
}

// quiescent reports whether nothing about this job can still make
// progress: every attached peer (stager and crawler) marked finished, and
// every shared set (discovered, current, backup) empty. It is a
// conservative lower bound, not a terminal state — new activity on the job
// makes it live again. Caller holds j.mu.
func (j *StagerJob) quiescent() bool {
	for _, st := range j.stagers {
		if !st.finished {
			return false
		}
	}
	for _, cs := range j.crawlers {
		if !cs.finished {
			return false
		}
	}
	if len(j.discoveredURLs) != 0 || len(j.currentURLs) != 0 {
		return false
	}
	for _, slice := range j.backup {
		if len(slice) != 0 {
			return false
		}
	}
	return true
}
