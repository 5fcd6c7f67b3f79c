package stagerrole

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/jobconfig"
)

// ingestTick scans the new-jobs directory for freshly dropped job
// definitions, every IngestInterval. A recognized `.job` file is loaded,
// becomes this stager's new owned job, and is marked `.loaded`.
func (s *Stager) ingestTick() {
	entries, err := os.ReadDir(s.cfg.NewJobsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("ingest: scan dir", zap.Error(err))
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), jobconfig.DumpSuffix) {
			continue
		}
		path := filepath.Join(s.cfg.NewJobsDir, e.Name())
		settings, err := jobconfig.LoadSerialized(path)
		if err != nil {
			s.logger.Error("ingest: load job file", zap.String("path", path), zap.Error(err))
			continue
		}
		s.ingestNewJob(settings)
		if err := jobconfig.MarkLoaded(path); err != nil {
			s.logger.Error("ingest: mark loaded", zap.String("path", path), zap.Error(err))
		}
	}
}
