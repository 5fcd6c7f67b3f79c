package seen

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
)

func openTestDB(t *testing.T, jobID string) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seen.sqlite")
	db, err := Open(path, jobID)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSeenReportsFalseForUnrecordedURL(t *testing.T) {
	db := openTestDB(t, "job_abc12345")
	seen, err := db.Seen("https://example.com/")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRecordThenSeenReportsTrue(t *testing.T) {
	db := openTestDB(t, "job_abc12345")
	uc := jobspec.Seed("job_abc12345", "https://example.com/")

	require.NoError(t, db.Record(uc))

	seen, err := db.Seen(uc.URL)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSanitizeProducesSafeTableName(t *testing.T) {
	assert.Equal(t, "job_abc123", sanitize("job_abc123"))
	assert.Equal(t, "job_abc_drop_table_", sanitize("job_abc;drop table;"))
}

func TestTwoJobsShareOneFileWithoutCollision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.sqlite")

	a, err := Open(path, "job_a")
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(path, "job_b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Record(jobspec.Seed("job_a", "https://a.example/")))

	seenInA, err := a.Seen("https://a.example/")
	require.NoError(t, err)
	assert.True(t, seenInA)

	seenInB, err := b.Seen("https://a.example/")
	require.NoError(t, err)
	assert.False(t, seenInB, "each job's table is independent even when sharing a sqlite file")
}
