package wire

import (
	"fmt"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
	"github.com/ArchiveTeam/WebArchiver/internal/netaddr"
)

// ErrArg is returned by the typed accessors below when a Message does not
// carry the expected shape. Handlers drop such a message (a few log it
// first) — protocol messages are never trusted to be well-formed
// across a gossiped, at-least-once transport.
type ErrArg struct {
	Verb  string
	Index int
	Want  string
}

func (e ErrArg) Error() string {
	return fmt.Sprintf("wire: %s: arg %d: want %s", e.Verb, e.Index, e.Want)
}

func str(m Message, i int) (string, error) {
	if i >= len(m.Args) {
		return "", ErrArg{m.Verb, i, "string"}
	}
	v, ok := m.Args[i].(Str)
	if !ok {
		return "", ErrArg{m.Verb, i, "string"}
	}
	return string(v), nil
}

func blob(m Message, i int) ([]byte, error) {
	if i >= len(m.Args) {
		return nil, ErrArg{m.Verb, i, "bytes"}
	}
	v, ok := m.Args[i].(Blob)
	if !ok {
		return nil, ErrArg{m.Verb, i, "bytes"}
	}
	return []byte(v), nil
}

func integer(m Message, i int) (int64, error) {
	if i >= len(m.Args) {
		return 0, ErrArg{m.Verb, i, "int"}
	}
	v, ok := m.Args[i].(Int)
	if !ok {
		return 0, ErrArg{m.Verb, i, "int"}
	}
	return int64(v), nil
}

func addr(m Message, i int) (netaddr.Address, error) {
	if i >= len(m.Args) {
		return netaddr.Address{}, ErrArg{m.Verb, i, "address"}
	}
	v, ok := m.Args[i].(Addr)
	if !ok {
		return netaddr.Address{}, ErrArg{m.Verb, i, "address"}
	}
	return netaddr.Address(v), nil
}

func urlConfig(m Message, i int) (jobspec.UrlConfig, error) {
	if i >= len(m.Args) {
		return jobspec.UrlConfig{}, ErrArg{m.Verb, i, "urlconfig"}
	}
	v, ok := m.Args[i].(URLConfigVal)
	if !ok {
		return jobspec.UrlConfig{}, ErrArg{m.Verb, i, "urlconfig"}
	}
	return jobspec.UrlConfig(v), nil
}

func settings(m Message, i int) (jobspec.JobSettings, error) {
	if i >= len(m.Args) {
		return jobspec.JobSettings{}, ErrArg{m.Verb, i, "settings"}
	}
	v, ok := m.Args[i].(SettingsVal)
	if !ok {
		return jobspec.JobSettings{}, ErrArg{m.Verb, i, "settings"}
	}
	s := jobspec.JobSettings(v)
	if err := s.Compile(); err != nil {
		return jobspec.JobSettings{}, err
	}
	return s, nil
}

func list(m Message, i int) (List, error) {
	if i >= len(m.Args) {
		return nil, ErrArg{m.Verb, i, "list"}
	}
	v, ok := m.Args[i].(List)
	if !ok {
		return nil, ErrArg{m.Verb, i, "list"}
	}
	return v, nil
}

// Args exposes the positional accessors for use outside this package
// (handlers in internal/stagerrole and internal/crawlerrole). They are
// thin type assertions — never a parser; Settings additionally compiles the
// decoded regex filters.
type Args struct{ msg Message }

// A wraps a decoded Message for typed, index-based argument access.
func A(m Message) Args { return Args{m} }

func (a Args) Str(i int) (string, error)                   { return str(a.msg, i) }
func (a Args) Blob(i int) ([]byte, error)                  { return blob(a.msg, i) }
func (a Args) Int(i int) (int64, error)                    { return integer(a.msg, i) }
func (a Args) Addr(i int) (netaddr.Address, error)         { return addr(a.msg, i) }
func (a Args) URLConfig(i int) (jobspec.UrlConfig, error)  { return urlConfig(a.msg, i) }
func (a Args) Settings(i int) (jobspec.JobSettings, error) { return settings(a.msg, i) }
func (a Args) List(i int) (List, error)                    { return list(a.msg, i) }
func (a Args) Len() int                                    { return len(a.msg.Args) }
