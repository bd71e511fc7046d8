package transport

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// groupConn is the family-independent subset of ipv4.PacketConn and
// ipv6.PacketConn used to manage group membership, outgoing options and
// destination-aware reads.
type groupConn interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
	SetMulticastInterface(ifi *net.Interface) error
	SetMulticastLoopback(on bool) error
	SetMulticastHops(hops int) error

	// SetDestinationControl asks the kernel to report each datagram's
	// destination address.
	SetDestinationControl(on bool) error
	// ReadDatagram reads one datagram. dst is nil when the platform does
	// not deliver control messages.
	ReadDatagram(b []byte) (n int, dst net.IP, src net.Addr, err error)
}

type ipv4Group struct {
	*ipv4.PacketConn
}

func (g ipv4Group) SetMulticastHops(hops int) error {
	return g.SetMulticastTTL(hops)
}

func (g ipv4Group) SetDestinationControl(on bool) error {
	return g.SetControlMessage(ipv4.FlagDst, on)
}

func (g ipv4Group) ReadDatagram(b []byte) (int, net.IP, net.Addr, error) {
	n, cm, src, err := g.ReadFrom(b)
	if cm == nil {
		return n, nil, src, err
	}
	return n, cm.Dst, src, err
}

type ipv6Group struct {
	*ipv6.PacketConn
}

func (g ipv6Group) SetMulticastHops(hops int) error {
	return g.SetMulticastHopLimit(hops)
}

func (g ipv6Group) SetDestinationControl(on bool) error {
	return g.SetControlMessage(ipv6.FlagDst, on)
}

func (g ipv6Group) ReadDatagram(b []byte) (int, net.IP, net.Addr, error) {
	n, cm, src, err := g.ReadFrom(b)
	if cm == nil {
		return n, nil, src, err
	}
	return n, cm.Dst, src, err
}

func newGroupConn(conn net.PacketConn, v6 bool) groupConn {
	if v6 {
		return ipv6Group{ipv6.NewPacketConn(conn)}
	}
	return ipv4Group{ipv4.NewPacketConn(conn)}
}

// joinGroup joins group on ifi. With no interface configured it first lets
// the OS pick one; hosts without a multicast route reject that, so it then
// joins on every up, multicast-capable interface and succeeds if any did.
func joinGroup(gc groupConn, ifi *net.Interface, group net.Addr) ([]*net.Interface, error) {
	if ifi != nil {
		if err := gc.JoinGroup(ifi, group); err != nil {
			return nil, err
		}
		return []*net.Interface{ifi}, nil
	}

	firstErr := gc.JoinGroup(nil, group)
	if firstErr == nil {
		return []*net.Interface{nil}, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, firstErr
	}

	var joined []*net.Interface
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := gc.JoinGroup(iface, group); err == nil {
			joined = append(joined, iface)
		}
	}
	if len(joined) == 0 {
		return nil, firstErr
	}
	return joined, nil
}

// resolveInterface accepts an interface name or one of its addresses.
// An empty string selects the OS default (nil).
func resolveInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}

	if ifi, err := net.InterfaceByName(name); err == nil {
		return ifi, nil
	}

	ip := net.ParseIP(name)
	if ip == nil {
		return nil, &net.OpError{Op: "lookup", Net: "iface", Err: errNoSuchInterface(name)}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, &net.OpError{Op: "lookup", Net: "iface", Err: errNoSuchInterface(name)}
}

type errNoSuchInterface string

func (e errNoSuchInterface) Error() string {
	return "no interface named or addressed " + string(e)
}
