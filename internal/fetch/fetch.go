// Package fetch wraps the external crawl binary behind the Driver contract:
// given a set of URLs and a working directory, run an archiving crawl and
// report back either the discovered parent/child URL pairs or a failure,
// leaving `.warc.gz` files behind in the directory.
//
// Two concrete backends implement Driver: ExecDriver runs the binary as a
// host subprocess (os/exec, a streamed --json progress protocol on stdout,
// stderr captured for errors), and DockerDriver runs it in a short-lived
// container (github.com/docker/docker/client) for deployments that ship the
// crawl binary as an image rather than a host binary.
package fetch

import "context"

// Discovery is one (parent, child) URL pair the fetch driver reported.
type Discovery struct {
	Parent string
	Child  string
}

// Result is what a fetch driver invocation returns on success.
type Result struct {
	Discoveries []Discovery
}

// Driver is the fetch-driver contract: run urls to completion inside
// workDir, returning the discovered link graph. workDir is left populated
// with whatever `.warc.gz` files the crawl produced; the caller globs it
// afterward to queue uploads.
type Driver interface {
	Fetch(ctx context.Context, urls []string, workDir string) (Result, error)
}

// ProgressEvent is one line of the driver's streamed JSON progress output.
// Only the fields this cluster acts on are decoded; everything else in the
// line is ignored.
type ProgressEvent struct {
	URL    string `json:"url"`
	Status string `json:"status"`
	Raw    string `json:"-"`
}

// ProgressFunc receives each ProgressEvent as it arrives. It is always
// called from the goroutine reading the driver's output and must not block.
type ProgressFunc func(ProgressEvent)
