package jobspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsRequiresAllowRegex(t *testing.T) {
	_, err := NewSettings("job", []string{"http://example.com"}, nil, nil, 1, 1)
	require.Error(t, err)
}

func TestNewSettingsDefaultsRateAndDepth(t *testing.T) {
	s, err := NewSettings("job", []string{"http://example.com"}, []string{".*"}, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRate, s.Rate)
	assert.Equal(t, DefaultDepth, s.Depth)
}

func TestNewSettingsIdentifierSuffixIsUnique(t *testing.T) {
	a, err := NewSettings("job", []string{"http://example.com"}, []string{".*"}, nil, 1, 1)
	require.NoError(t, err)
	b, err := NewSettings("job", []string{"http://example.com"}, []string{".*"}, nil, 1, 1)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.Identifier, "job_"))
	assert.NotEqual(t, a.Identifier, b.Identifier)
	assert.Len(t, strings.TrimPrefix(a.Identifier, "job_"), 8)
}

func TestAllowed(t *testing.T) {
	s, err := NewSettings("job", nil, []string{`^https://example\.com/`}, []string{`/private/`}, 1, 1)
	require.NoError(t, err)

	assert.True(t, s.Allowed("https://example.com/index.html"))
	assert.False(t, s.Allowed("https://other.com/index.html"), "must match an allow pattern")
	assert.False(t, s.Allowed("https://example.com/private/secret.html"), "ignore pattern must override allow")
}

func TestAllowedLazyCompilesAfterGobRoundTrip(t *testing.T) {
	s := JobSettings{
		Identifier: "job_abc",
		AllowRegex: []string{`^https://example\.com/`},
	}
	// allow/ignore are unexported and gob never carries them: a freshly
	// decoded JobSettings has nil compiled regexes until Allowed or Compile
	// runs.
	assert.True(t, s.Allowed("https://example.com/page"))
}

func TestWithinDepth(t *testing.T) {
	s := JobSettings{Depth: 2}
	assert.True(t, s.WithinDepth(0))
	assert.True(t, s.WithinDepth(2))
	assert.False(t, s.WithinDepth(3))
}

func TestChildIncrementsDepthAndRecordsParent(t *testing.T) {
	parent := Seed("job1", "https://example.com/")
	child := Child("job1", "https://example.com/a", parent)

	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, parent.URL, child.ParentURL)
	assert.Equal(t, parent.JobID, child.JobID)
}
