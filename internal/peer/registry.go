package peer

import (
	"sync"

	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
)

// Registry is the node's concurrency-safe peer table: a mutex-guarded map
// keyed by Address with filtered-snapshot accessors. It is lock-based rather
// than owned by the dispatch loop because peer lookups happen from many
// goroutines at once — every fetch worker and every periodic tick wants to
// address a peer by Address.
type Registry struct {
	mu    sync.RWMutex
	byKey map[netaddr.Address]*Peer
	all   map[*Peer]struct{}
}

// NewRegistry returns an empty peer table.
func NewRegistry() *Registry {
	return &Registry{
		byKey: make(map[netaddr.Address]*Peer),
		all:   make(map[*Peer]struct{}),
	}
}

// Add registers p under its remote address so it can be looked up before its
// declared address is known. Call Reindex once the handshake reveals the
// peer's declared listener Address.
func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all[p] = struct{}{}
	r.byKey[p.Remote] = p
}

// Reindex moves p's registry key from its old remote/declared address to its
// now-known declared address, called once an ANNOUNCE_* handshake completes.
func (r *Registry) Reindex(p *Peer, declared netaddr.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, p.Remote)
	delete(r.byKey, p.Declared())
	p.SetDeclared(declared)
	r.byKey[declared] = p
}

// Remove drops p from the table entirely. Called once its Run loop exits.
func (r *Registry) Remove(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.all, p)
	delete(r.byKey, p.Remote)
	delete(r.byKey, p.Declared())
}

// Get looks up a peer by its declared (or, before handshake, remote) Address.
func (r *Registry) Get(addr netaddr.Address) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[addr]
	return p, ok
}

// All returns a snapshot of every currently registered peer.
func (r *Registry) All() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.all))
	for p := range r.all {
		out = append(out, p)
	}
	return out
}

// WithRole returns a snapshot of every peer currently classified as role.
func (r *Registry) WithRole(role Role) []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.all))
	for p := range r.all {
		if p.Role() == role {
			out = append(out, p)
		}
	}
	return out
}

// Len reports how many peers are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}
