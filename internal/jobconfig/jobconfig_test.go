package jobconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccumulatesRepeatedKeys(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"# a comment is ignored",
		"",
		"url https://example.com/",
		"url https://example.com/other",
		"allow regex ^https://example\\.com/",
		"ignore regex /private/",
		"rate 5",
		"depth 3",
	}, "\n"))

	r, err := parse(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/", "https://example.com/other"}, r.urls)
	assert.Equal(t, []string{`^https://example\.com/`}, r.allowRegex)
	assert.Equal(t, []string{"/private/"}, r.ignoreRegex)
	assert.Equal(t, 5, r.rate)
	assert.Equal(t, 3, r.depth)
}

func TestParseRejectsUnrecognizedKey(t *testing.T) {
	_, err := parse(strings.NewReader("bogus value"))
	assert.Error(t, err)
}

func TestParseRejectsMalformedEntry(t *testing.T) {
	_, err := parse(strings.NewReader("no-value-here"))
	assert.Error(t, err)
}

func TestSplitKeyPrefersTwoWordKeys(t *testing.T) {
	key, value, ok := splitKey("urls file /tmp/seeds.txt")
	require.True(t, ok)
	assert.Equal(t, "urls file", key)
	assert.Equal(t, "/tmp/seeds.txt", value)
}

func TestLoadResolvesUrlsFile(t *testing.T) {
	dir := t.TempDir()

	seedsPath := filepath.Join(dir, "seeds.txt")
	require.NoError(t, os.WriteFile(seedsPath, []byte("https://example.com/a\nhttps://example.com/b\n"), 0o644))

	jobPath := filepath.Join(dir, "test.job")
	content := "url https://example.com/\n" +
		"urls file " + seedsPath + "\n" +
		"allow regex ^https://example\\.com/\n"
	require.NoError(t, os.WriteFile(jobPath, []byte(content), 0o644))

	settings, err := Load(jobPath, "test")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"https://example.com/",
		"https://example.com/a",
		"https://example.com/b",
	}, settings.URLs)
	assert.True(t, strings.HasPrefix(settings.Identifier, "test_"))
}
