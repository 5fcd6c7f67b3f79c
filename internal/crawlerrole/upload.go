package crawlerrole

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// WarcUpload is the per-WARC-file upload negotiation state: whether
// permission has been requested, who has granted it, and the
// eventually-decided upload target. Once chosen is set it is never
// recomputed, even if the chosen stager later disappears — a grant arriving
// after the decision is ignored, and the revoke/transfer step that follows
// runs exactly once.
type WarcUpload struct {
	mu sync.Mutex

	jobID    string
	path     string
	filesize int64

	requested      bool
	lastAnswerTime time.Time
	grantedBy      []netaddr.Address
	revoked        bool

	chosen    *netaddr.Address // nil until decided; never reassigned afterward
	noGranter bool             // terminal ⊥ state: nobody answered in time
}

func (j *CrawlerJob) addUpload(u *WarcUpload) {
	j.mu.Lock()
	j.uploads[u.path] = u
	j.mu.Unlock()
}

func (j *CrawlerJob) removeUpload(path string) {
	j.mu.Lock()
	delete(j.uploads, path)
	j.mu.Unlock()
}

func (j *CrawlerJob) getUpload(path string) (*WarcUpload, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	u, ok := j.uploads[path]
	return u, ok
}

func (j *CrawlerJob) uploadSnapshot() []*WarcUpload {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*WarcUpload, 0, len(j.uploads))
	for _, u := range j.uploads {
		out = append(out, u)
	}
	return out
}

// registerUpload starts the negotiation state machine for a freshly
// produced WARC file: request permission from every attached stager and
// record the request time.
func (c *Crawler) registerUpload(job *CrawlerJob, jobID, path string, filesize int64) {
	u := &WarcUpload{
		jobID:          jobID,
		path:           path,
		filesize:       filesize,
		requested:      true,
		lastAnswerTime: time.Now(),
	}
	job.addUpload(u)
	for addr := range job.stagerSet() {
		if sp, ok := c.node.Registry.Get(addr); ok {
			_ = sp.Send(wire.New("REQUEST_UPLOAD_PERMISSION", wire.Str(jobID), wire.Str(path), wire.Int(filesize)))
		}
	}
}

func (c *Crawler) handleUploadPermissionGranted(n *transport.Node, p *peer.Peer, msg wire.Message) {
	jobID, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	path, err := wire.A(msg).Str(1)
	if err != nil {
		return
	}
	job, ok := c.job(jobID)
	if !ok {
		return
	}
	u, ok := job.getUpload(path)
	if !ok {
		return
	}
	u.mu.Lock()
	if u.chosen == nil && !u.noGranter {
		u.grantedBy = append(u.grantedBy, p.Declared())
	}
	u.mu.Unlock()
}

// handleUploadPermissionDenied is informational: a denial simply never
// contributes to grantedBy.
func (c *Crawler) handleUploadPermissionDenied(n *transport.Node, p *peer.Peer, msg wire.Message) {}

// uploadTick advances every outstanding upload's state machine one step on
// the RequestUploadInterval cadence: decide among the granters once the
// answer window has passed, then revoke the losers and transfer the file.
func (c *Crawler) uploadTick() {
	for jobID, job := range c.jobsByID() {
		for _, u := range job.uploadSnapshot() {
			c.advanceUpload(jobID, job, u)
		}
	}
}

func (c *Crawler) advanceUpload(jobID string, job *CrawlerJob, u *WarcUpload) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.chosen == nil && !u.noGranter {
		if time.Since(u.lastAnswerTime) < c.cfg.RequestUploadInterval {
			return
		}
		if len(u.grantedBy) == 0 {
			u.noGranter = true
			job.removeUpload(u.path)
			return
		}
		pick := u.grantedBy[randIndexN(len(u.grantedBy))]
		u.chosen = &pick
	}
	if u.chosen == nil || u.revoked {
		return
	}

	for _, g := range u.grantedBy {
		if g == *u.chosen {
			continue
		}
		if sp, ok := c.node.Registry.Get(g); ok {
			_ = sp.Send(wire.New("REQUEST_UPLOAD_REVOKE", wire.Str(jobID), wire.Str(u.path)))
		}
	}
	u.revoked = true

	data, err := os.ReadFile(u.path)
	if err != nil {
		c.logger.Error("upload: read warc file", zap.String("path", u.path), zap.Error(err))
		job.removeUpload(u.path)
		return
	}
	if err := os.WriteFile(u.path+".uploading", nil, 0o644); err != nil {
		c.logger.Warn("upload: create sentinel", zap.String("path", u.path), zap.Error(err))
	}
	if sp, ok := c.node.Registry.Get(*u.chosen); ok {
		_ = sp.Send(wire.File("WARC_FILE", u.path, data, wire.Str(jobID)))
	}
}

func (c *Crawler) handleWarcFileReceived(n *transport.Node, p *peer.Peer, msg wire.Message) {
	jobID, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	path, err := wire.A(msg).Str(1)
	if err != nil {
		return
	}
	job, ok := c.job(jobID)
	if !ok {
		return
	}
	if _, ok := job.getUpload(path); !ok {
		return
	}
	job.removeUpload(path)
	_ = os.Remove(path)
	_ = os.Remove(path + ".uploading")
}
