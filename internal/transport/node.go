// Package transport is the node-agnostic half of the cluster protocol: it
// accepts and dials framed TCP links, classifies and tracks the peers on the
// other end, and dispatches decoded messages to verb handlers one at a time.
//
// Node is a two-part design: per-peer read/write pumps (internal/peer) feed
// a single shared inbound channel, and one dispatch goroutine here drains
// it — handlers run serially, but no single goroutine has to also own
// accept and dial.
package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
	"github.com/ArchiveTeam/WebArchiver/internal/peer"
	"github.com/ArchiveTeam/WebArchiver/internal/wire"
)

// HandlerFunc processes one decoded Message received from p. Handlers must
// not block on I/O: any work that waits on a socket, disk, or another
// peer's reply belongs on a goroutine the handler starts, not inline.
type HandlerFunc func(n *Node, p *peer.Peer, msg wire.Message)

// Node owns a listener, the peer registry, the verb dispatch table, and the
// scheduler driving this node's periodic protocol ticks (PING_TIME and
// whatever role-specific ticks are registered on top via Scheduler()).
type Node struct {
	Self     netaddr.Address
	Registry *peer.Registry
	logger   *zap.Logger

	mu       sync.RWMutex
	dispatch map[string]HandlerFunc

	inbound   chan peer.Inbound
	listener  net.Listener
	scheduler gocron.Scheduler

	pingInterval time.Duration
}

// New constructs a Node bound to self (this node's own advertised address).
// It does not yet listen or dial; call Listen and Run to start serving.
func New(self netaddr.Address, pingInterval time.Duration, logger *zap.Logger) (*Node, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("transport: create scheduler: %w", err)
	}
	n := &Node{
		Self:         self,
		Registry:     peer.NewRegistry(),
		logger:       logger.Named("transport"),
		dispatch:     make(map[string]HandlerFunc),
		inbound:      make(chan peer.Inbound, 256),
		scheduler:    sched,
		pingInterval: pingInterval,
	}
	n.Register("PING", handlePing)
	n.Register("PONG", handlePong)
	return n, nil
}

// Register installs h as the handler for verb, matched case-insensitively.
// Call before Run; registering while the dispatch loop is active is safe
// (guarded by mu) but role packages are expected to finish registering their
// handlers during construction, before Run starts.
func (n *Node) Register(verb string, h HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dispatch[strings.ToUpper(verb)] = h
}

// Scheduler exposes the node's gocron scheduler so role packages (stagerrole,
// crawlerrole) can register their own periodic ticks (JOBS_CHECK_TIME,
// REQUEST_STAGER_TIME, URL_QUOTA_TIME, REQUEST_UPLOAD_TIME, …) on the same
// clock as the transport-level PING tick.
func (n *Node) Scheduler() gocron.Scheduler { return n.scheduler }

// Listen opens the node's TCP listener on Self.
func (n *Node) Listen() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", n.Self.Port))
	if err != nil {
		return fmt.Errorf("transport: listen on %d: %w", n.Self.Port, err)
	}
	n.listener = l
	return nil
}

// Dial opens an outbound link to addr and registers it as an Unclassified
// peer. The caller is expected to follow up with the role-appropriate
// ANNOUNCE_* message once Run's dispatch loop starts serving it.
func (n *Node) Dial(addr netaddr.Address) (*peer.Peer, error) {
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	p := peer.New(conn, addr, n.logger)
	n.Registry.Add(p)
	go n.runPeer(p)
	return p, nil
}

// Run starts accepting connections, dispatching inbound messages, and
// ticking the scheduler. It blocks until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	if n.listener == nil {
		if err := n.Listen(); err != nil {
			return err
		}
	}

	if _, err := n.scheduler.NewJob(
		gocron.DurationJob(n.pingInterval),
		gocron.NewTask(func() { n.pingAll() }),
		gocron.WithTags("transport-ping"),
	); err != nil {
		return fmt.Errorf("transport: schedule ping: %w", err)
	}
	n.scheduler.Start()

	go n.acceptLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = n.listener.Close()
			_ = n.scheduler.Shutdown()
			return ctx.Err()
		case in := <-n.inbound:
			n.handle(in)
		}
	}
}

func (n *Node) acceptLoop(ctx context.Context) {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				n.logger.Debug("transport: accept error", zap.Error(err))
				return
			}
		}
		remote, err := netaddr.Parse(conn.RemoteAddr().String())
		if err != nil {
			remote = netaddr.Address{Host: conn.RemoteAddr().String()}
		}
		p := peer.New(conn, remote, n.logger)
		n.Registry.Add(p)
		go n.runPeer(p)
	}
}

func (n *Node) runPeer(p *peer.Peer) {
	p.Run(n.inbound)
	n.Registry.Remove(p)
}

func (n *Node) handle(in peer.Inbound) {
	n.mu.RLock()
	h, ok := n.dispatch[strings.ToUpper(in.Msg.Verb)]
	n.mu.RUnlock()
	if !ok {
		n.logger.Warn("transport: unknown verb, dropping", zap.String("verb", in.Msg.Verb), zap.String("remote", in.Peer.Remote.String()))
		return
	}
	h(n, in.Peer, in.Msg)
}

// pingAll sends PING to every registered peer on the liveness tick. There
// is no deadline that declares a peer dead — a still-awaiting peer is
// simply pinged again; death is detected only when the transport itself
// fails (read/write error on the link).
func (n *Node) pingAll() {
	for _, p := range n.Registry.All() {
		p.MarkPinged()
		if err := p.Send(wire.New("PING")); err != nil {
			n.logger.Debug("transport: ping send failed", zap.Error(err))
		}
	}
}

func handlePing(n *Node, p *peer.Peer, msg wire.Message) {
	_ = n
	_ = p.Send(wire.New("PONG"))
}

func handlePong(n *Node, p *peer.Peer, msg wire.Message) {
	if rePing := p.ObservePong(); rePing {
		p.MarkPinged()
		_ = p.Send(wire.New("PING"))
		n.logger.Debug("transport: unsolicited pong, re-pinging", zap.String("remote", p.Remote.String()))
	}
}
