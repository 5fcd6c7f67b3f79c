package stagerrole

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// reservation tracks one outstanding upload-permission grant, keyed by
// (job_id, path) so a later revoke or file transfer can look it up.
type reservation struct {
	filesize int64
}

// uploads is the stager's free-space/reservation tracker. Free space is
// always maxSpace minus the sum of reserved filesizes, clamped at zero. It
// is guarded by its own lock, separate from per-job state, since the
// storage budget is node-wide rather than job-scoped.
type uploads struct {
	mu           sync.Mutex
	reservations map[string]reservation // key: jobID + "\x00" + path
	maxSpace     int64
}

func reservationKey(jobID, path string) string { return jobID + "\x00" + path }

func (u *uploads) reserve(jobID, path string, filesize int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	used := int64(0)
	for _, r := range u.reservations {
		used += r.filesize
	}
	if u.maxSpace-used < filesize {
		return false
	}
	u.reservations[reservationKey(jobID, path)] = reservation{filesize: filesize}
	return true
}

func (u *uploads) release(jobID, path string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.reservations, reservationKey(jobID, path))
}

func (u *uploads) freeSpace() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	used := int64(0)
	for _, r := range u.reservations {
		used += r.filesize
	}
	free := u.maxSpace - used
	if free < 0 {
		return 0
	}
	return free
}

func (s *Stager) handleRequestUploadPermission(n *transport.Node, p *peer.Peer, msg wire.Message) {
	jobID, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	path, err := wire.A(msg).Str(1)
	if err != nil {
		return
	}
	filesize, err := wire.A(msg).Int(2)
	if err != nil {
		return
	}
	if s.uploadTracker.reserve(jobID, path, filesize) {
		_ = p.Send(wire.New("UPLOAD_PERMISSION_GRANTED", wire.Str(jobID), wire.Str(path)))
	} else {
		_ = p.Send(wire.New("UPLOAD_PERMISSION_DENIED", wire.Str(jobID), wire.Str(path)))
	}
}

func (s *Stager) handleRequestUploadRevoke(n *transport.Node, p *peer.Peer, msg wire.Message) {
	jobID, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	path, err := wire.A(msg).Str(1)
	if err != nil {
		return
	}
	// Idempotent on unknown paths: release is a no-op if absent.
	s.uploadTracker.release(jobID, path)
}

func (s *Stager) handleWarcFile(n *transport.Node, p *peer.Peer, msg wire.Message) {
	path, err := wire.A(msg).Str(0)
	if err != nil {
		return
	}
	data, err := wire.A(msg).Blob(1)
	if err != nil {
		return
	}
	jobID, err := wire.A(msg).Str(2)
	if err != nil {
		return
	}

	destDir := filepath.Join(s.cfg.WarcDir, jobID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		s.logger.Error("WARC_FILE: mkdir", zap.Error(err))
		return
	}
	final := filepath.Join(destDir, filepath.Base(path))
	tmp := final + "." + randomSuffix6()

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("WARC_FILE: write temp", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, final); err != nil {
		s.logger.Error("WARC_FILE: rename", zap.Error(err))
		os.Remove(tmp)
		return
	}

	s.uploadTracker.release(jobID, path)
	_ = p.Send(wire.New("WARC_FILE_RECEIVED", wire.Str(jobID), wire.Str(path)))
}

func randomSuffix6() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:6]
}
