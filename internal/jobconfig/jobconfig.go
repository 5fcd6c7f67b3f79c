// Package jobconfig parses the flat key/value job-definition file format
// and turns it into a jobspec.JobSettings, resolving the `urls file` and
// `urls url` forms (local file reads and HTTP GETs) into the final seed
// list.
//
// There is no third-party config library in play here on purpose: the
// format is not TOML/YAML/INI/.env, it is a bespoke "key value" grammar with
// repeatable keys accumulating into lists, so a hand-written line scanner is
// the idiomatic fit rather than forcing the shape into a library meant for a
// different grammar.
package jobconfig

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
)

// raw accumulates every recognized key's values in file order, before any
// network or filesystem resolution happens.
type raw struct {
	name        string
	urls        []string
	urlsFiles   []string
	urlsURLs    []string
	allowRegex  []string
	ignoreRegex []string
	rate        int
	depth       int
}

// httpClient is overridable in tests; production uses a short, explicit
// timeout rather than the zero-value client's unbounded wait.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// Load reads the job definition file at path, resolves every `urls file`
// and `urls url` reference, and returns the assembled JobSettings. name is
// the job's externally supplied identifier stem (the file's base name minus
// extension), passed through to jobspec.NewSettings for suffixing.
func Load(path, name string) (jobspec.JobSettings, error) {
	f, err := os.Open(path)
	if err != nil {
		return jobspec.JobSettings{}, fmt.Errorf("jobconfig: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := parse(f)
	if err != nil {
		return jobspec.JobSettings{}, fmt.Errorf("jobconfig: parse %s: %w", path, err)
	}
	r.name = name

	urls := append([]string{}, r.urls...)
	for _, p := range r.urlsFiles {
		more, err := readLocalList(p)
		if err != nil {
			return jobspec.JobSettings{}, fmt.Errorf("jobconfig: urls file %s: %w", p, err)
		}
		urls = append(urls, more...)
	}
	for _, u := range r.urlsURLs {
		more, err := fetchRemoteList(u)
		if err != nil {
			return jobspec.JobSettings{}, fmt.Errorf("jobconfig: urls url %s: %w", u, err)
		}
		urls = append(urls, more...)
	}

	rate := r.rate
	if rate <= 0 {
		rate = jobspec.DefaultRate
	}
	depth := r.depth
	if depth <= 0 {
		depth = jobspec.DefaultDepth
	}

	settings, err := jobspec.NewSettings(r.name, urls, r.allowRegex, r.ignoreRegex, rate, depth)
	if err != nil {
		return jobspec.JobSettings{}, fmt.Errorf("jobconfig: build settings: %w", err)
	}
	return settings, nil
}

// parse scans the flat "key value" grammar: each non-blank, non-comment line
// is a recognized key followed by one value; keys that accept lists simply
// repeat across multiple lines.
func parse(r io.Reader) (raw, error) {
	var out raw
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitKey(line)
		if !ok {
			return raw{}, fmt.Errorf("line %d: malformed entry %q", lineNo, line)
		}
		switch key {
		case "url":
			out.urls = append(out.urls, value)
		case "urls file":
			out.urlsFiles = append(out.urlsFiles, value)
		case "urls url":
			out.urlsURLs = append(out.urlsURLs, value)
		case "allow regex":
			out.allowRegex = append(out.allowRegex, value)
		case "ignore regex":
			out.ignoreRegex = append(out.ignoreRegex, value)
		case "rate":
			n, err := strconv.Atoi(value)
			if err != nil {
				return raw{}, fmt.Errorf("line %d: rate: %w", lineNo, err)
			}
			out.rate = n
		case "depth":
			n, err := strconv.Atoi(value)
			if err != nil {
				return raw{}, fmt.Errorf("line %d: depth: %w", lineNo, err)
			}
			out.depth = n
		default:
			return raw{}, fmt.Errorf("line %d: unrecognized key %q", lineNo, key)
		}
	}
	if err := sc.Err(); err != nil {
		return raw{}, err
	}
	return out, nil
}

// splitKey recognizes the two-word keys ("urls file", "urls url", "allow
// regex", "ignore regex") before falling back to a single-word key, since a
// naive first-space split would cut "urls file /tmp/x" after "urls".
var twoWordKeys = []string{"urls file", "urls url", "allow regex", "ignore regex"}

func splitKey(line string) (key, value string, ok bool) {
	for _, k := range twoWordKeys {
		if strings.HasPrefix(line, k+" ") {
			return k, strings.TrimSpace(line[len(k):]), true
		}
	}
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return "", "", false
	}
	return line[:i], strings.TrimSpace(line[i+1:]), true
}

func readLocalList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(string(data)), nil
}

func fetchRemoteList(url string) ([]string, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(string(data)), nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
