// Package netaddr defines the node identity used throughout the cluster.
package netaddr

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Address is the (host, port) pair that identifies a node's listener.
// Equality is structural: two Addresses are equal iff both fields match.
// It is used both as a dial target and as a routing key in every peer
// registry and backup slot in the system.
type Address struct {
	Host string
	Port int
}

// New returns the Address for host:port.
func New(host string, port int) Address {
	return Address{Host: host, Port: port}
}

// String renders the address in host:port form, suitable for net.Dial.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Parse parses a "host:port" string into an Address.
func Parse(s string) (Address, error) {
	h, p, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("netaddr: invalid address %q: missing port", s)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return Address{}, fmt.Errorf("netaddr: invalid address %q: %w", s, err)
	}
	return Address{Host: h, Port: port}, nil
}

// Zero reports whether a is the unset Address value.
func (a Address) Zero() bool {
	return a.Host == "" && a.Port == 0
}

// randomPortLow and randomPortHigh bound the default listener port range
// for a node that didn't pin one on the CLI.
const (
	randomPortLow  = 3000
	randomPortHigh = 6000
)

// RandomPort returns a random listener port in [3000,6000), used when
// --port is unspecified.
func RandomPort() int {
	return randomPortLow + rand.Intn(randomPortHigh-randomPortLow)
}
