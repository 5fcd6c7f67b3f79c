// Package warc pins the two WARC-processing collaborator contracts this
// cluster treats as external: rewriting duplicate payloads into revisit
// records via a deduplication oracle, and extracting discovered URLs from a
// response record. Neither is reimplemented here — WARC parsing itself is
// someone else's library — only the interfaces and an HTTP dedup-oracle
// client are. No other package in this module imports this one.
package warc

import "time"

// Record is the minimal shape of a WARC response record this package's
// collaborators need: a URL, its payload, and the SHA-1 digest of that
// payload (which a real WARC library computes and stores as a named
// header; recomputing it here is simply crypto/sha1.Sum(Payload)).
type Record struct {
	URL           string
	PayloadDigest string // sha1 hex digest of Payload
	Payload       []byte
}

// Revisit is the outcome of a dedup lookup: a prior capture of the same
// payload digest + URL, which a WARC writer rewrites the current record
// against instead of storing the payload again.
type Revisit struct {
	Date time.Time
	URI  string
}

// Deduplicator answers whether a record's payload has already been
// captured, so a WARC writer can rewrite the response into a revisit record
// instead of storing the payload again.
type Deduplicator interface {
	// Lookup returns the prior capture for rec, or ok == false if this
	// payload has not been seen before.
	Lookup(rec Record) (rev Revisit, ok bool, err error)
}

// URLExtractor yields the URLs discovered within a response record's
// payload (HTML link/script/img src extraction, sitemap parsing, etc. — the
// concrete strategy is the external collaborator's business).
type URLExtractor interface {
	Extract(rec Record) ([]string, error)
}
