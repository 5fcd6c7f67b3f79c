// Package wire implements the framed message layer every peer link in the
// cluster speaks: discrete messages, each a verb plus a heterogeneous
// sequence of typed arguments, preceded on the wire by an 8-byte
// little-endian length prefix.
//
// The codec is built on encoding/gob rather than a third-party serializer:
// gob natively preserves the distinction between []byte and string through
// arbitrarily nested values — embedded WARC payloads must survive the
// round-trip byte-for-byte — and needs no code-generation step.
package wire

import (
	"encoding/gob"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
)

// Value is one argument of a Message. The concrete types below are the
// closed set of value kinds the protocol carries; Value itself carries no
// behaviour beyond marking membership in that set.
type Value interface {
	isValue()
}

// Str is a UTF-8 string argument (job identifiers, verbs embedded as data,
// file paths, etc).
type Str string

func (Str) isValue() {}

// Blob is an opaque byte-string argument. It is kept as a distinct Go type
// from Str specifically so gob round-trips arbitrary bytes — including
// 0x00 and non-UTF8 sequences in an embedded WARC file — without ever being
// coerced through a string.
type Blob []byte

func (Blob) isValue() {}

// Int is an integer argument (depth, filesize, quota grant, counts, …).
type Int int64

func (Int) isValue() {}

// Addr carries a node Address (used for peer addresses embedded in
// messages, e.g. STAGER_NEW, JOB_URL_BACKUP's owning-stager address).
type Addr netaddr.Address

func (Addr) isValue() {}

// URLConfigVal carries a jobspec.UrlConfig.
type URLConfigVal jobspec.UrlConfig

func (URLConfigVal) isValue() {}

// SettingsVal carries a jobspec.JobSettings.
type SettingsVal jobspec.JobSettings

func (SettingsVal) isValue() {}

// List carries a nested, arbitrarily-deep sequence of Values, used e.g. to
// batch a list of peer addresses or UrlConfigs into a single argument.
type List []Value

func (List) isValue() {}

func init() {
	gob.Register(Str(""))
	gob.Register(Blob(nil))
	gob.Register(Int(0))
	gob.Register(Addr{})
	gob.Register(URLConfigVal{})
	gob.Register(SettingsVal{})
	gob.Register(List(nil))
}

// Message is one framed protocol message: a verb (ASCII command name,
// matched case-insensitively by the dispatcher) and its arguments.
type Message struct {
	Verb string
	Args []Value
}

// New builds a Message from a verb and a list of Values.
func New(verb string, args ...Value) Message {
	return Message{Verb: verb, Args: args}
}

// Addresses returns a List of Addr built from addrs, suitable for
// gossip-style fan-out arguments (e.g. the peer list in NEW_JOB_STAGER).
func Addresses(addrs []netaddr.Address) List {
	out := make(List, len(addrs))
	for i, a := range addrs {
		out[i] = Addr(a)
	}
	return out
}
