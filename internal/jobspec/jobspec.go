// Package jobspec defines the unit-of-work and job-definition types shared
// by every node role: UrlConfig is the URL moved across the cluster,
// JobSettings is the immutable definition a job was created from.
package jobspec

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// UrlConfig is the unit of work moved across the cluster. Hash and equality
// derive from all four fields. Seed URLs have Depth == 0 and ParentURL == "".
type UrlConfig struct {
	JobID     string
	URL       string
	Depth     int
	ParentURL string
}

// Key returns the map key used by frontier/backup/current sets, which are
// keyed by URL alone within a single job's namespace.
func (u UrlConfig) Key() string { return u.URL }

// Seed builds depth-0 UrlConfig for a job's initial seed list.
func Seed(jobID, url string) UrlConfig {
	return UrlConfig{JobID: jobID, URL: url, Depth: 0, ParentURL: ""}
}

// Child builds the UrlConfig for a URL discovered while fetching parent.
func Child(jobID, url string, parent UrlConfig) UrlConfig {
	return UrlConfig{JobID: jobID, URL: url, Depth: parent.Depth + 1, ParentURL: parent.URL}
}

// DefaultRate and DefaultDepth approximate "maxint" from the source spec:
// effectively unlimited unless the job definition overrides them.
const (
	DefaultRate  = math.MaxInt32
	DefaultDepth = math.MaxInt32
)

// JobSettings is the immutable definition of a crawl job, replicated
// verbatim to every stager and crawler that takes part in it. Identifier
// acts as the primary key across the cluster.
type JobSettings struct {
	Identifier  string
	URLs        []string
	AllowRegex  []string
	IgnoreRegex []string
	Rate        int
	Depth       int

	allow  []*regexp.Regexp
	ignore []*regexp.Regexp
}

// NewSettings constructs a JobSettings, appending an 8-character random
// suffix to name so concurrently-ingested jobs with the same human-chosen
// name never collide across the cluster.
func NewSettings(name string, urls, allow, ignore []string, rate, depth int) (JobSettings, error) {
	if len(allow) == 0 {
		return JobSettings{}, fmt.Errorf("jobspec: allow_regex must be non-empty")
	}
	if rate <= 0 {
		rate = DefaultRate
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	s := JobSettings{
		Identifier:  name + "_" + randomSuffix(8),
		URLs:        urls,
		AllowRegex:  allow,
		IgnoreRegex: ignore,
		Rate:        rate,
		Depth:       depth,
	}
	if err := s.compile(); err != nil {
		return JobSettings{}, err
	}
	return s, nil
}

// randomSuffix returns the first n hex characters of a freshly generated
// UUIDv4.
func randomSuffix(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(id) {
		n = len(id)
	}
	return id[:n]
}

// compile builds the unexported regex filters from AllowRegex/IgnoreRegex.
// gob does not carry them, so a JobSettings that crossed the wire has none
// until compile runs; Allowed runs it lazily when both filter lists are empty.
func (s *JobSettings) compile() error {
	s.allow = make([]*regexp.Regexp, 0, len(s.AllowRegex))
	for _, p := range s.AllowRegex {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("jobspec: invalid allow_regex %q: %w", p, err)
		}
		s.allow = append(s.allow, re)
	}
	s.ignore = make([]*regexp.Regexp, 0, len(s.IgnoreRegex))
	for _, p := range s.IgnoreRegex {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("jobspec: invalid ignore_regex %q: %w", p, err)
		}
		s.ignore = append(s.ignore, re)
	}
	return nil
}

// Compile exposes compile for callers that received a JobSettings off the
// wire (e.g. via gob) and want its regex filters built eagerly, with any
// invalid pattern reported as an error.
func (s *JobSettings) Compile() error { return s.compile() }

// Allowed reports whether url passes this job's allow/ignore regex filters:
// it must match at least one allow_regex and no ignore_regex.
func (s *JobSettings) Allowed(url string) bool {
	if len(s.allow) == 0 && len(s.ignore) == 0 {
		// Not yet compiled (e.g. freshly decoded off the wire) — compile
		// lazily so callers never have to remember to do it themselves.
		if err := s.compile(); err != nil {
			return false
		}
	}
	matched := false
	for _, re := range s.allow {
		if re.MatchString(url) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, re := range s.ignore {
		if re.MatchString(url) {
			return false
		}
	}
	return true
}

// WithinDepth reports whether depth is within this job's configured bound.
func (s JobSettings) WithinDepth(depth int) bool {
	return depth <= s.Depth
}
