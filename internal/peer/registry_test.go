package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
)

func newTestPeer(t *testing.T, remote netaddr.Address) *Peer {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return New(server, remote, zap.NewNop())
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	remote := netaddr.New("127.0.0.1", 4001)
	p := newTestPeer(t, remote)

	r.Add(p)
	got, ok := r.Get(remote)
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, 1, r.Len())

	r.Remove(p)
	_, ok = r.Get(remote)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryReindexMovesKey(t *testing.T) {
	r := NewRegistry()
	remote := netaddr.New("127.0.0.1", 4001)
	declared := netaddr.New("203.0.113.5", 3000)
	p := newTestPeer(t, remote)
	r.Add(p)

	r.Reindex(p, declared)

	_, ok := r.Get(remote)
	assert.False(t, ok, "the ephemeral remote key must no longer resolve after reindexing")
	got, ok := r.Get(declared)
	require.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, declared, p.Declared())
}

func TestRegistryWithRoleFiltersByClassification(t *testing.T) {
	r := NewRegistry()
	stager := newTestPeer(t, netaddr.New("127.0.0.1", 4001))
	stager.SetRole(StagerPeer)
	crawler := newTestPeer(t, netaddr.New("127.0.0.1", 4002))
	crawler.SetRole(CrawlerPeer)
	r.Add(stager)
	r.Add(crawler)

	stagers := r.WithRole(StagerPeer)
	require.Len(t, stagers, 1)
	assert.Same(t, stager, stagers[0])

	crawlers := r.WithRole(CrawlerPeer)
	require.Len(t, crawlers, 1)
	assert.Same(t, crawler, crawlers[0])
}
