// Package forwarder implements per-session raw IPv4 packet spoofing, send/capture,
// and checksum recomputation.
package forwarder

import (
	"encoding/binary"
	"errors"
	"net"
)

// TransportKind distinguishes the two transport protocols the forwarder carries.
type TransportKind int

const (
	TCP TransportKind = iota
	UDP
)

const (
	protocolTCP = 6
	protocolUDP = 17
)

// ErrNotIPv4 is returned when raw isn't a well-formed IPv4 header.
var ErrNotIPv4 = errors.New("forwarder: not an IPv4 packet")

// ErrUnsupportedTransport is returned when the IPv4 payload is neither TCP nor UDP.
var ErrUnsupportedTransport = errors.New("forwarder: neither TCP nor UDP")

// ErrTruncated is returned when raw is shorter than its own header claims.
var ErrTruncated = errors.New("forwarder: packet truncated")

// Packet is a parsed, mutable IPv4 packet carrying a TCP or UDP segment. Raw always
// holds the full wire bytes; every mutating method keeps Raw and the parsed fields in
// sync so Raw can be handed straight to a Transport afterwards.
type Packet struct {
	Raw      []byte
	Protocol TransportKind
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16

	ihl int // IPv4 header length in bytes
}

// ParseIPv4 parses raw as an IPv4 packet carrying a TCP or UDP segment. Anything
// else - not IPv4, or neither TCP nor UDP - is reported as invalid.
func ParseIPv4(raw []byte) (*Packet, error) {
	if len(raw) < 20 {
		return nil, ErrTruncated
	}
	if version := raw[0] >> 4; version != 4 {
		return nil, ErrNotIPv4
	}
	ihl := int(raw[0]&0x0f) * 4
	if ihl < 20 || len(raw) < ihl {
		return nil, ErrTruncated
	}

	var kind TransportKind
	var minTransportLen int
	switch raw[9] {
	case protocolTCP:
		kind = TCP
		minTransportLen = 20 // fixed TCP header, through the checksum field, no options
	case protocolUDP:
		kind = UDP
		minTransportLen = 8 // fixed UDP header, through the checksum field
	default:
		return nil, ErrUnsupportedTransport
	}
	if len(raw) < ihl+minTransportLen {
		return nil, ErrTruncated
	}

	return &Packet{
		Raw:      raw,
		Protocol: kind,
		ihl:      ihl,
		SrcIP:    net.IPv4(raw[12], raw[13], raw[14], raw[15]).To4(),
		DstIP:    net.IPv4(raw[16], raw[17], raw[18], raw[19]).To4(),
		SrcPort:  binary.BigEndian.Uint16(raw[ihl : ihl+2]),
		DstPort:  binary.BigEndian.Uint16(raw[ihl+2 : ihl+4]),
	}, nil
}

// RewriteSource spoofs the packet's source IP/port to newSrcIP/newSrcPort and
// recomputes the IP and transport checksums.
func (p *Packet) RewriteSource(newSrcIP net.IP, newSrcPort uint16) error {
	ip4 := newSrcIP.To4()
	if ip4 == nil {
		return errors.New("forwarder: source address must be IPv4")
	}
	copy(p.Raw[12:16], ip4)
	p.SrcIP = ip4
	binary.BigEndian.PutUint16(p.Raw[p.ihl:p.ihl+2], newSrcPort)
	p.SrcPort = newSrcPort
	p.recomputeChecksums()
	return nil
}

// RewriteDestination restores the packet's destination IP/port. Used on the reply
// path so a captured response is re-addressed back to the client's original
// endpoint before being handed back over the tunnel.
func (p *Packet) RewriteDestination(newDstIP net.IP, newDstPort uint16) error {
	ip4 := newDstIP.To4()
	if ip4 == nil {
		return errors.New("forwarder: destination address must be IPv4")
	}
	copy(p.Raw[16:20], ip4)
	p.DstIP = ip4
	binary.BigEndian.PutUint16(p.Raw[p.ihl+2:p.ihl+4], newDstPort)
	p.DstPort = newDstPort
	p.recomputeChecksums()
	return nil
}

func (p *Packet) recomputeChecksums() {
	binary.BigEndian.PutUint16(p.Raw[10:12], 0)
	binary.BigEndian.PutUint16(p.Raw[10:12], onesComplementSum(p.Raw[:p.ihl]))

	transport := p.Raw[p.ihl:]
	switch p.Protocol {
	case TCP:
		binary.BigEndian.PutUint16(transport[16:18], 0)
		binary.BigEndian.PutUint16(transport[16:18], pseudoHeaderChecksum(protocolTCP, p.SrcIP, p.DstIP, transport))
	case UDP:
		binary.BigEndian.PutUint16(transport[6:8], 0)
		sum := pseudoHeaderChecksum(protocolUDP, p.SrcIP, p.DstIP, transport)
		if sum == 0 {
			sum = 0xffff // RFC 768: a computed checksum of zero is transmitted as all-ones
		}
		binary.BigEndian.PutUint16(transport[6:8], sum)
	}
}

// pseudoHeaderChecksum covers the IPv4 pseudo-header plus the transport segment, per
// RFC 793 §3.1 (TCP) and RFC 768 (UDP).
func pseudoHeaderChecksum(protocol byte, srcIP, dstIP net.IP, segment []byte) uint16 {
	pseudo := make([]byte, 12+len(segment))
	copy(pseudo[0:4], srcIP.To4())
	copy(pseudo[4:8], dstIP.To4())
	pseudo[9] = protocol
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))
	copy(pseudo[12:], segment)
	return onesComplementSum(pseudo)
}

// onesComplementSum is the standard Internet checksum (RFC 791 §3.1): a
// one's-complement sum of 16-bit words, complemented.
func onesComplementSum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
