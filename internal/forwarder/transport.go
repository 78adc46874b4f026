package forwarder

import (
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// Transport abstracts raw IPv4 packet send/receive so a Forwarder can be driven by
// tests without opening a real raw socket (which needs CAP_NET_RAW/root). Send/Recv
// both work in terms of full, wire-format IPv4 packets so callers never need to know
// about golang.org/x/net/ipv4's header/payload split.
type Transport interface {
	// Send transmits a full, checksum-valid IPv4 packet with a (possibly spoofed)
	// source address already baked in.
	Send(pkt []byte) error
	// Recv blocks until either an IPv4 packet of the transport kind this Transport
	// was opened for arrives, or deadline passes. A zero Time means no deadline:
	// block until something arrives or the Transport is closed. A nil slice with a
	// nil error means a non-zero deadline passed with nothing received.
	Recv(deadline time.Time) ([]byte, error)
	Close() error
}

// rawConnTransport is the production Transport for one transport protocol (TCP or
// UDP), backed by a single golang.org/x/net/ipv4.RawConn opened with IP_HDRINCL so
// outbound packets carry the spoofed source address untouched by the kernel.
type rawConnTransport struct {
	conn *ipv4.RawConn
}

// NewRawTransport opens a raw IPv4 socket for the given transport protocol
// ("tcp" or "udp") and wraps it as a Transport.
func NewRawTransport(protocol string) (Transport, error) {
	packetConn, err := net.ListenPacket("ip4:"+protocol, "0.0.0.0")
	if err != nil {
		return nil, err
	}
	rawConn, err := ipv4.NewRawConn(packetConn)
	if err != nil {
		packetConn.Close()
		return nil, err
	}
	return &rawConnTransport{conn: rawConn}, nil
}

func (t *rawConnTransport) Send(pkt []byte) error {
	header, err := ipv4.ParseHeader(pkt)
	if err != nil {
		return err
	}
	payload := pkt[header.Len:]
	return t.conn.WriteTo(header, payload, nil)
}

func (t *rawConnTransport) Recv(deadline time.Time) ([]byte, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	buf := make([]byte, 65535)
	header, payload, _, err := t.conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	wire, err := header.Marshal()
	if err != nil {
		return nil, err
	}
	return append(wire, payload...), nil
}

func (t *rawConnTransport) Close() error {
	return t.conn.Close()
}
