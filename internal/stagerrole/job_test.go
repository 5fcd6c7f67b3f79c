package stagerrole

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
)

func TestNewStagerJobSeedsFrontierFromSettings(t *testing.T) {
	settings := jobspec.JobSettings{
		Identifier: "demo_ab12cd34",
		URLs:       []string{"https://a/", "https://b/"},
	}
	j := newStagerJob(settings)

	assert.Len(t, j.discoveredURLs, 2)
	for _, uc := range j.discoveredURLs {
		assert.Equal(t, 0, uc.Depth, "seed URLs enter the frontier at depth 0")
		assert.Empty(t, uc.ParentURL)
	}
}

func TestQuiescentFalseWhileURLsOutstanding(t *testing.T) {
	j := newStagerJob(jobspec.JobSettings{Identifier: "demo", URLs: []string{"https://a/"}})
	assert.False(t, j.quiescent(), "a job with frontier URLs is never quiescent")

	j.discoveredURLs = map[string]jobspec.UrlConfig{}
	j.currentURLs["https://a/"] = jobspec.Seed("demo", "https://a/")
	assert.False(t, j.quiescent(), "a job with assigned URLs is never quiescent")
}

func TestQuiescentFalseWhileBackupSlotsHeld(t *testing.T) {
	j := newStagerJob(jobspec.JobSettings{Identifier: "demo"})
	owner := netaddr.New("203.0.113.5", 3001)
	j.backup[owner] = map[string]jobspec.UrlConfig{
		"https://a/": jobspec.Seed("demo", "https://a/"),
	}
	assert.False(t, j.quiescent())

	delete(j.backup[owner], "https://a/")
	assert.True(t, j.quiescent(), "empty sets and no unfinished peers mean quiescent")
}

func TestQuiescentRequiresEveryPeerFinished(t *testing.T) {
	j := newStagerJob(jobspec.JobSettings{Identifier: "demo"})
	st := j.ensureStager(netaddr.New("203.0.113.5", 3001))
	assert.False(t, j.quiescent(), "an unfinished co-owner keeps the job live")

	st.finished = true
	assert.True(t, j.quiescent())
}
