package warc

import (
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyFor(rec Record) string {
	sum := sha512.Sum512([]byte(rec.PayloadDigest + rec.URL))
	return hex.EncodeToString(sum[:])
}

func TestLookupReturnsPriorCapture(t *testing.T) {
	rec := Record{URL: "https://example.com/", PayloadDigest: "da39a3ee5e6b4b0d3255bfef95601890afd80709"}
	captured := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+keyFor(rec) {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(captured.Format(time.RFC3339) + ";https://example.com/\n"))
	}))
	defer srv.Close()

	d := NewHTTPDeduplicator(srv.URL)
	rev, ok, err := d.Lookup(rec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/", rev.URI)
	assert.True(t, rev.Date.Equal(captured))
}

func TestLookupUnknownDigestIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewHTTPDeduplicator(srv.URL)
	_, ok, err := d.Lookup(Record{URL: "https://example.com/", PayloadDigest: "abc"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupEmptyBodyMeansNoPriorCapture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDeduplicator(srv.URL)
	_, ok, err := d.Lookup(Record{URL: "https://example.com/", PayloadDigest: "abc"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupMalformedResponseIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("no separator here"))
	}))
	defer srv.Close()

	d := NewHTTPDeduplicator(srv.URL)
	_, _, err := d.Lookup(Record{URL: "https://example.com/", PayloadDigest: "abc"})
	assert.Error(t, err)
}
