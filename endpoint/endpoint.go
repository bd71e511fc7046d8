// Package endpoint parses textual locators into Endpoints.
//
// A locator has the form
//
//	scheme/address[?metadata][#config]
//
// where address is host:port, with IPv6 hosts in brackets ([ff02::1]:7447).
// The metadata and config sections are key=value pairs separated by ';' or
// '&'. When only a '?' section is present its pairs form the config map, so
// both "udp/224.0.0.224:7447?iface=eth0" and
// "udp/224.0.0.224:7447#iface=eth0" configure the interface.
//
// Endpoints are immutable once parsed.
package endpoint

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joshuafuller/picolink/internal/errors"
)

// Configuration keys understood by the UDP multicast transport.
const (
	// KeyTimeout is the socket receive timeout in milliseconds.
	KeyTimeout = "timeout"
	// KeyIface is the network interface (name or address) for group membership.
	KeyIface = "iface"
	// KeyTTL is the multicast TTL / hop limit of outgoing datagrams.
	KeyTTL = "ttl"
	// KeyLoopback controls whether our own datagrams are looped back locally.
	KeyLoopback = "loopback"
)

const (
	schemeSeparator   = '/'
	metadataSeparator = '?'
	configSeparator   = '#'
	pairAssign        = '='
)

// Config is a read-only string map. The zero value is empty and usable.
// It is safe for concurrent readers.
type Config struct {
	m map[string]string
}

// Get returns the value for key and whether it was present.
func (c Config) Get(key string) (string, bool) {
	v, ok := c.m[key]
	return v, ok
}

// Len returns the number of entries.
func (c Config) Len() int {
	return len(c.m)
}

// Keys returns the keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.m))
	for k := range c.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value for key, or def when absent.
func (c Config) String(key, def string) string {
	if v, ok := c.m[key]; ok {
		return v
	}
	return def
}

// Duration interprets the value for key as a non-negative number of
// milliseconds. Absent keys yield def.
func (c Config) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := c.m[key]
	if !ok {
		return def, nil
	}
	ms, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, &errors.ParseError{Input: key + "=" + v, Reason: "expected milliseconds"}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Int interprets the value for key as a decimal integer. Absent keys yield def.
func (c Config) Int(key string, def int) (int, error) {
	v, ok := c.m[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &errors.ParseError{Input: key + "=" + v, Reason: "expected integer"}
	}
	return n, nil
}

// Bool interprets the value for key with strconv.ParseBool. Absent keys yield def.
func (c Config) Bool(key string, def bool) (bool, error) {
	v, ok := c.m[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &errors.ParseError{Input: key + "=" + v, Reason: "expected boolean"}
	}
	return b, nil
}

func (c Config) render() string {
	keys := c.Keys()
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+string(pairAssign)+c.m[k])
	}
	return strings.Join(pairs, ";")
}

// Locator is the transport-level part of an Endpoint.
type Locator struct {
	// Protocol is the scheme, e.g. "udp".
	Protocol string
	// Address is host:port as written, brackets included for IPv6.
	Address string
	// Metadata holds the '?' pairs when a '#' config section is also present.
	Metadata Config
}

// Host returns the address segment of the locator.
func (l Locator) Host() string {
	host, _ := AddressSegment(l.Address)
	return host
}

// Port returns the port segment of the locator.
func (l Locator) Port() string {
	port, _ := PortSegment(l.Address)
	return port
}

// Endpoint is a parsed locator plus its configuration map.
type Endpoint struct {
	Locator Locator
	Config  Config
}

// String renders the endpoint back into locator form with sorted keys.
func (e Endpoint) String() string {
	var b strings.Builder
	b.WriteString(e.Locator.Protocol)
	b.WriteByte(schemeSeparator)
	b.WriteString(e.Locator.Address)
	if e.Locator.Metadata.Len() > 0 {
		b.WriteByte(metadataSeparator)
		b.WriteString(e.Locator.Metadata.render())
	}
	if e.Config.Len() > 0 {
		b.WriteByte(configSeparator)
		b.WriteString(e.Config.render())
	}
	return b.String()
}

// Parse parses a locator string. On error no Endpoint is produced.
func Parse(s string) (Endpoint, error) {
	fail := func(reason string) (Endpoint, error) {
		return Endpoint{}, &errors.ParseError{Input: s, Reason: reason}
	}

	slash := strings.IndexByte(s, schemeSeparator)
	if slash < 0 {
		return fail("missing scheme separator '/'")
	}
	scheme := s[:slash]
	if scheme == "" {
		return fail("empty scheme")
	}
	rest := s[slash+1:]

	var cfgStr, metaStr string
	var hasCfg, hasMeta bool
	if i := strings.IndexByte(rest, configSeparator); i >= 0 {
		rest, cfgStr, hasCfg = rest[:i], rest[i+1:], true
	}
	if i := strings.IndexByte(rest, metadataSeparator); i >= 0 {
		rest, metaStr, hasMeta = rest[:i], rest[i+1:], true
	}

	address := rest
	if address == "" {
		return fail("empty address")
	}
	host, port, reason := splitHostPort(address)
	if reason != "" {
		return fail(reason)
	}
	if host == "" {
		return fail("empty host")
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		return fail("invalid port " + strconv.Quote(port))
	}

	meta, reason := parsePairs(metaStr)
	if reason != "" {
		return fail(reason)
	}
	cfg, reason := parsePairs(cfgStr)
	if reason != "" {
		return fail(reason)
	}
	if hasMeta && !hasCfg {
		cfg, meta = meta, Config{}
	}

	return Endpoint{
		Locator: Locator{
			Protocol: scheme,
			Address:  address,
			Metadata: meta,
		},
		Config: cfg,
	}, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(s string) Endpoint {
	ep, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ep
}

// AddressSegment returns the host part of a host:port address. IPv6 hosts
// are returned without brackets.
func AddressSegment(address string) (string, error) {
	host, _, reason := splitHostPort(address)
	if reason != "" {
		return "", &errors.ParseError{Input: address, Reason: reason}
	}
	return host, nil
}

// PortSegment returns the text after the last top-level ':' of address.
func PortSegment(address string) (string, error) {
	_, port, reason := splitHostPort(address)
	if reason != "" {
		return "", &errors.ParseError{Input: address, Reason: reason}
	}
	return port, nil
}

// splitHostPort splits at the last ':' outside a bracket group. A non-empty
// reason means the address is malformed.
func splitHostPort(address string) (host, port, reason string) {
	if strings.HasPrefix(address, "[") {
		end := strings.IndexByte(address, ']')
		if end < 0 {
			return "", "", "unbalanced '[' in address"
		}
		host = address[1:end]
		if strings.ContainsAny(host, "[]") {
			return "", "", "nested brackets in address"
		}
		after := address[end+1:]
		if !strings.HasPrefix(after, ":") {
			return "", "", "missing ':' between host and port"
		}
		port = after[1:]
		if strings.ContainsAny(port, "[]:") {
			return "", "", "unexpected characters after port separator"
		}
	} else {
		if strings.ContainsAny(address, "[]") {
			return "", "", "unbalanced ']' in address"
		}
		colon := strings.LastIndexByte(address, ':')
		if colon < 0 {
			return "", "", "missing ':' between host and port"
		}
		host, port = address[:colon], address[colon+1:]
	}

	if port == "" {
		return "", "", "empty port"
	}
	return host, port, ""
}

func parsePairs(s string) (Config, string) {
	if s == "" {
		return Config{}, ""
	}

	m := make(map[string]string)
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '&' })
	for _, field := range fields {
		eq := strings.IndexByte(field, pairAssign)
		if eq <= 0 {
			return Config{}, "malformed pair " + strconv.Quote(field)
		}
		key, value := field[:eq], field[eq+1:]
		if _, dup := m[key]; dup {
			return Config{}, "duplicate key " + strconv.Quote(key)
		}
		m[key] = value
	}
	return Config{m: m}, ""
}
