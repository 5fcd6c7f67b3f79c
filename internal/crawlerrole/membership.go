package crawlerrole

import (
	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/transport"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

func (c *Crawler) handleConfirmed(n *transport.Node, p *peer.Peer, msg wire.Message) {
	state, err := wire.A(msg).Int(0)
	if err != nil {
		return
	}
	if state == 0 {
		_ = p.Send(wire.New("CONFIRMED", wire.Int(1)))
	}
	p.SetConfirmed()
}

// requestStagerTick keeps the crawler's stager-peer count topped up: below
// MaxStager known stager peers, ask a random one for more.
func (c *Crawler) requestStagerTick() {
	known := c.node.Registry.WithRole(peer.StagerPeer)
	if len(known) >= c.cfg.MaxStager || len(known) == 0 {
		return
	}
	needed := int64(c.cfg.MaxStager - len(known))
	exclude := make([]wire.Value, 0, len(known))
	for _, sp := range known {
		exclude = append(exclude, wire.Addr(sp.Declared()))
	}
	target := known[randIndexN(len(known))]
	_ = target.Send(wire.New("REQUEST_STAGER", wire.Int(needed), wire.List(exclude)))
}

func (c *Crawler) handleAddStager(n *transport.Node, p *peer.Peer, msg wire.Message) {
	addr, err := wire.A(msg).Addr(0)
	if err != nil {
		return
	}
	if _, known := n.Registry.Get(addr); known {
		return
	}
	// Dial off the dispatch goroutine: handlers must not block on I/O.
	go func() {
		newPeer, err := n.Dial(addr)
		if err != nil {
			c.logger.Debug("REQUEST_STAGER reply: dial failed", zap.Stringer("addr", addr), zap.Error(err))
			return
		}
		newPeer.SetRole(peer.StagerPeer)
		_ = newPeer.Send(wire.New("ANNOUNCE_CRAWLER_EXTRA", wire.Addr(n.Self)))
	}()
}
