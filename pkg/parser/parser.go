// Package parser implements the link/network parser of spec.md §4.1: it
// decodes a captured link-layer frame into the (l3_type, addresses,
// l4_protocol, ports, payload length, TCP flag subset) tuple the rest of
// the engine operates on.
//
// Grounded on original_source/nDPId.c's ndpi_process_packet datalink
// switch (DLT_NULL / DLT_EN10MB handling and the length checks that
// precede each header read) and els0r-goProbe/pkg/capture/flow.go's
// ParsePacket (byte-offset TCP/UDP field extraction).
package parser

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"

	"github.com/flowlens/ndpid-go/pkg/flowtypes"
)

// Errors returned by Parse. Callers log-and-drop on any of these, per
// spec.md §4.1.
var (
	ErrFrameTooShort    = errors.New("frame too short for declared link header")
	ErrUnsupportedLink  = errors.New("unsupported link type")
	ErrARP              = errors.New("ARP frame, dropped")
	ErrUnknownEtherType = errors.New("unknown ethertype, dropped")
	ErrNotIP            = errors.New("non-IP network layer")
	ErrIPHeaderShort    = errors.New("captured length too short for IP header")
	ErrL4HeaderShort    = errors.New("captured length too short for L4 header")
)

const (
	nullLoopbackHeaderLen = 4
	ethernetHeaderLen     = 14

	ipv4MinHeaderLen = 20
	ipv6HeaderLen    = 40

	tcpMinHeaderLen = 20
	udpHeaderLen    = 8
)

// TCP flag bits read out of byte 13 of the TCP header.
const (
	tcpFlagFIN = 0x01
	tcpFlagSYN = 0x02
	tcpFlagACK = 0x10
)

// Packet is the parsed representation the rest of the engine consumes.
type Packet struct {
	Tuple flowtypes.Tuple

	// L3 is the raw network-layer buffer (IP header onward), handed to
	// the DPI engine unmodified (spec.md §4.4 step 7).
	L3 []byte

	L4PayloadLen int

	SYN, FIN, ACK bool
}

// Parse decodes a single captured frame of the given gopacket link type.
// Only LinkTypeNull (BSD loopback), LinkTypeLoop (handled the same way as
// LinkTypeNull) and LinkTypeEthernet are accepted, per spec.md §4.1.
func Parse(linkType gopacket.LinkType, data []byte) (Packet, error) {
	var l3Type flowtypes.L3Type
	var offset int

	switch linkType {
	case gopacket.LinkTypeNull, gopacket.LinkTypeLoop:
		if len(data) < nullLoopbackHeaderLen {
			return Packet{}, ErrFrameTooShort
		}
		family := binary.LittleEndian.Uint32(data[0:4])
		if family == 2 {
			l3Type = flowtypes.L3IPv4
		} else {
			l3Type = flowtypes.L3IPv6
		}
		offset = nullLoopbackHeaderLen

	case gopacket.LinkTypeEthernet:
		if len(data) < ethernetHeaderLen {
			return Packet{}, ErrFrameTooShort
		}
		etherType := binary.BigEndian.Uint16(data[12:14])
		switch etherType {
		case 0x0800:
			l3Type = flowtypes.L3IPv4
		case 0x86DD:
			l3Type = flowtypes.L3IPv6
		case 0x0806:
			return Packet{}, ErrARP
		default:
			return Packet{}, fmt.Errorf("%w: 0x%04x", ErrUnknownEtherType, etherType)
		}
		offset = ethernetHeaderLen

	default:
		return Packet{}, fmt.Errorf("%w: %s", ErrUnsupportedLink, linkType)
	}

	l3 := data[offset:]

	switch l3Type {
	case flowtypes.L3IPv4:
		return parseIPv4(l3)
	case flowtypes.L3IPv6:
		return parseIPv6(l3)
	default:
		return Packet{}, ErrNotIP
	}
}

func parseIPv4(l3 []byte) (Packet, error) {
	if len(l3) < ipv4MinHeaderLen {
		return Packet{}, ErrIPHeaderShort
	}
	ihl := int(l3[0]&0x0F) * 4
	if ihl < ipv4MinHeaderLen || len(l3) < ihl {
		return Packet{}, ErrIPHeaderShort
	}

	proto := l3[9]
	srcAddr, _ := netip.AddrFromSlice(l3[12:16])
	dstAddr, _ := netip.AddrFromSlice(l3[16:20])

	p := Packet{
		Tuple: flowtypes.Tuple{
			L3:      flowtypes.L3IPv4,
			Proto:   proto,
			SrcAddr: srcAddr,
			DstAddr: dstAddr,
		},
		L3: l3,
	}

	l4 := l3[ihl:]
	if err := parseL4(&p, proto, l4); err != nil {
		return Packet{}, err
	}
	return p, nil
}

func parseIPv6(l3 []byte) (Packet, error) {
	if len(l3) < ipv6HeaderLen {
		return Packet{}, ErrIPHeaderShort
	}

	proto := l3[6]
	srcAddr, _ := netip.AddrFromSlice(l3[8:24])
	dstAddr, _ := netip.AddrFromSlice(l3[24:40])

	p := Packet{
		Tuple: flowtypes.Tuple{
			L3:      flowtypes.L3IPv6,
			Proto:   proto,
			SrcAddr: srcAddr,
			DstAddr: dstAddr,
		},
		L3: l3,
	}

	l4 := l3[ipv6HeaderLen:]
	if err := parseL4(&p, proto, l4); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// parseL4 extracts ports and TCP flags for port-bearing protocols, per
// spec.md §4.1. Other L4 protocols (ICMP, ICMPv6, hop-by-hop, ...) are
// accepted with ports left at zero.
func parseL4(p *Packet, proto uint8, l4 []byte) error {
	switch proto {
	case flowtypes.ProtoTCP:
		if len(l4) < tcpMinHeaderLen {
			return ErrL4HeaderShort
		}
		p.Tuple.SrcPort = binary.BigEndian.Uint16(l4[0:2])
		p.Tuple.DstPort = binary.BigEndian.Uint16(l4[2:4])
		flags := l4[13]
		p.SYN = flags&tcpFlagSYN != 0
		p.FIN = flags&tcpFlagFIN != 0
		p.ACK = flags&tcpFlagACK != 0
		dataOffset := int(l4[12]>>4) * 4
		if dataOffset < tcpMinHeaderLen || dataOffset > len(l4) {
			dataOffset = tcpMinHeaderLen
		}
		p.L4PayloadLen = len(l4) - dataOffset

	case flowtypes.ProtoUDP:
		if len(l4) < udpHeaderLen {
			return ErrL4HeaderShort
		}
		p.Tuple.SrcPort = binary.BigEndian.Uint16(l4[0:2])
		p.Tuple.DstPort = binary.BigEndian.Uint16(l4[2:4])
		p.L4PayloadLen = len(l4) - udpHeaderLen

	default:
		// ICMP, ICMPv6, hop-by-hop, etc: ports stay zero, payload is
		// whatever trails the L3 header.
		p.L4PayloadLen = len(l4)
	}

	if p.L4PayloadLen < 0 {
		p.L4PayloadLen = 0
	}
	return nil
}

// IsMidstream reports whether a TCP packet lacked SYN (spec.md §4.1).
func (p Packet) IsMidstream() bool {
	return p.Tuple.Proto == flowtypes.ProtoTCP && !p.SYN
}

// FinAck reports the flow_fin_ack_seen condition for this packet
// (spec.md §4.1: fin & ack).
func (p Packet) FinAck() bool {
	return p.FIN && p.ACK
}
