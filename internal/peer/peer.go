// Package peer models one end of a cluster link: a bidirectional byte
// stream, a transmit queue, a declared Address, and per-connection liveness
// and role flags.
//
// Each connection is split into a read pump and a write pump: one goroutine
// owns the wire read side and one owns the wire write side, so no two
// goroutines ever read, or ever write, the connection at the same time.
package peer

import (
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// Role classifies a peer once its handshake verb has been seen. A peer is
// Unclassified from accept/dial until the first ANNOUNCE_* message arrives.
type Role int

const (
	Unclassified Role = iota
	StagerPeer
	CrawlerPeer
)

func (r Role) String() string {
	switch r {
	case StagerPeer:
		return "stager"
	case CrawlerPeer:
		return "crawler"
	default:
		return "unclassified"
	}
}

// outboxSize bounds how many messages may be queued for a single peer
// before Send starts rejecting new ones. A full outbox means the peer is
// not draining fast enough to keep up — Send drops the message and returns
// an error rather than blocking the rest of the node on one slow link.
const outboxSize = 256

// Peer owns one connection's read and write sides plus its liveness and
// role state.
type Peer struct {
	conn   net.Conn
	Remote netaddr.Address // ephemeral accept-side endpoint, for logging only
	logger *zap.Logger

	mu           sync.Mutex
	declared     netaddr.Address // the peer's own listener address, set on handshake
	role         Role
	confirmed    bool
	awaitingPong bool
	pongReceived bool

	outbox chan wire.Message
	closed chan struct{}
	once   sync.Once
}

// Inbound pairs a decoded Message with the Peer it arrived on, the unit the
// read side hands to the node's single dispatch goroutine.
type Inbound struct {
	Peer *Peer
	Msg  wire.Message
}

// New wraps conn as a freshly accepted or dialed Peer. remote is the
// transport-level endpoint (not yet the peer's declared listener address,
// which is only known after the handshake verb arrives).
func New(conn net.Conn, remote netaddr.Address, logger *zap.Logger) *Peer {
	return &Peer{
		conn:   conn,
		Remote: remote,
		logger: logger.With(zap.String("remote", remote.String())),
		outbox: make(chan wire.Message, outboxSize),
		closed: make(chan struct{}),
	}
}

// Declared returns the peer's self-reported listener Address, the zero
// Address before the handshake completes.
func (p *Peer) Declared() netaddr.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.declared
}

// SetDeclared records the peer's self-reported listener Address, learned
// from its ANNOUNCE_* message.
func (p *Peer) SetDeclared(a netaddr.Address) {
	p.mu.Lock()
	p.declared = a
	p.mu.Unlock()
}

// Role returns the peer's current classification.
func (p *Peer) Role() Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.role
}

// SetRole classifies the peer once its first ANNOUNCE_* verb is seen.
func (p *Peer) SetRole(r Role) {
	p.mu.Lock()
	p.role = r
	p.mu.Unlock()
}

// Confirmed reports whether the CONFIRMED handshake completed on this link.
func (p *Peer) Confirmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmed
}

// SetConfirmed marks the handshake terminal. The handshake is idempotent: a
// second CONFIRMED with state 1 is a no-op once already set.
func (p *Peer) SetConfirmed() {
	p.mu.Lock()
	p.confirmed = true
	p.mu.Unlock()
}

// MarkPinged records that a PING was just sent and a pong is now awaited.
func (p *Peer) MarkPinged() {
	p.mu.Lock()
	p.awaitingPong = true
	p.pongReceived = false
	p.mu.Unlock()
}

// AwaitingPong reports whether a PING is outstanding on this link.
func (p *Peer) AwaitingPong() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.awaitingPong
}

// ObservePong handles an incoming PONG. It returns true when a pong arrives
// while none was awaited, which the caller answers with an immediate re-ping
// so the ping loop self-heals.
func (p *Peer) ObservePong() (rePing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.awaitingPong {
		rePing = true
	}
	p.awaitingPong = false
	p.pongReceived = true
	return rePing
}

// Send enqueues msg for delivery. It never blocks: a full outbox means the
// peer cannot keep the link draining and the message is dropped with an
// error; any state that goes stale because of a dropped message is repaired
// by the periodic protocol ticks.
func (p *Peer) Send(msg wire.Message) error {
	select {
	case p.outbox <- msg:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	default:
		return errFull
	}
}

var errFull = &sendError{"peer: outbox full, message dropped"}

type sendError struct{ msg string }

func (e *sendError) Error() string { return e.msg }

// Run drives the peer's read and write pumps until the connection fails.
// readPump executes on the calling goroutine; writePump runs in its own.
// Run returns when readPump exits, which closes the connection; writePump
// then stops on its own and is not waited for. At that point the caller
// (the transport Node) should remove this Peer from its registry.
func (p *Peer) Run(inbound chan<- Inbound) {
	go p.writePump()
	p.readPump(inbound)
}

// readPump blocks reading frames off the wire and forwarding each decoded
// Message to the shared inbound channel for serial dispatch: handlers
// execute one at a time, never interleaved, regardless of which link a
// message arrived on.
func (p *Peer) readPump(inbound chan<- Inbound) {
	defer p.Close()
	for {
		msg, err := wire.ReadFrame(p.conn)
		if err != nil {
			if err != io.EOF {
				p.logger.Debug("peer: read error, closing link", zap.Error(err))
			}
			return
		}
		select {
		case inbound <- Inbound{Peer: p, Msg: msg}:
		case <-p.closed:
			return
		}
	}
}

// writePump drains the outbox one message at a time. While it is draining a
// non-empty queue the link carries nothing else — there is no concurrent
// writer to race with.
func (p *Peer) writePump() {
	for {
		select {
		case msg, ok := <-p.outbox:
			if !ok {
				return
			}
			if err := wire.WriteFrame(p.conn, msg); err != nil {
				p.logger.Debug("peer: write error, closing link", zap.Error(err))
				p.Close()
				return
			}
		case <-p.closed:
			return
		}
	}
}

// Close tears down the connection. Safe to call multiple times and from
// multiple goroutines.
func (p *Peer) Close() {
	p.once.Do(func() {
		close(p.closed)
		_ = p.conn.Close()
	})
}
