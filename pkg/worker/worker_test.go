package worker

import (
	"encoding/binary"
	"io"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/ndpid-go/pkg/capture"
	"github.com/flowlens/ndpid-go/pkg/dpi"
	"github.com/flowlens/ndpid-go/pkg/flowtable"
	"github.com/flowlens/ndpid-go/pkg/flowtypes"
	"github.com/flowlens/ndpid-go/pkg/logging"
)

func tupleFor(srcPort uint16) flowtypes.Tuple {
	return flowtypes.Tuple{
		L3:      flowtypes.L3IPv4,
		Proto:   flowtypes.ProtoUDP,
		SrcAddr: netip.MustParseAddr("172.16.0.1"),
		DstAddr: netip.MustParseAddr("172.16.0.2"),
		SrcPort: srcPort,
		DstPort: 53,
	}
}

func computeHashFor(w *Worker, tup flowtypes.Tuple) uint64 {
	return flowtable.ComputeHash(w.engine, tup)
}

// fakeSource replays a fixed slice of capture.Packet records and then
// returns io.EOF, mirroring an offline pcap.Source without touching
// libpcap.
type fakeSource struct {
	packets []capture.Packet
	pos     int
	broken  bool
}

func (f *fakeSource) Open() error { return nil }

func (f *fakeSource) NextPacket() (capture.Packet, error) {
	if f.broken || f.pos >= len(f.packets) {
		return capture.Packet{}, io.EOF
	}
	pkt := f.packets[f.pos]
	f.pos++
	return pkt, nil
}

func (f *fakeSource) LinkType() gopacket.LinkType { return gopacket.LinkTypeEthernet }
func (f *fakeSource) Stats() (capture.Stats, error) { return capture.Stats{}, nil }
func (f *fakeSource) BreakLoop()                    { f.broken = true }
func (f *fakeSource) Close() error                  { return nil }

// ethUDP builds a minimal Ethernet+IPv4+UDP frame carrying payload, for
// feeding the parser without depending on a real capture library.
func ethUDP(src, dst net.IP, srcPort, dstPort uint16, payload []byte) []byte {
	eth := make([]byte, 14)
	binary.BigEndian.PutUint16(eth[12:14], 0x0800)

	udpLen := 8 + len(payload)
	ipLen := 20 + udpLen
	ip := make([]byte, 20)
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(ipLen))
	ip[8] = 64
	ip[9] = 17 // UDP
	copy(ip[12:16], src.To4())
	copy(ip[16:20], dst.To4())

	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpLen))

	frame := append(eth, ip...)
	frame = append(frame, udp...)
	frame = append(frame, payload...)
	return frame
}

func newTestWorker(t *testing.T, src *fakeSource) *Worker {
	t.Helper()
	require.NoError(t, logging.Init(logging.LevelError, false))

	var nextID uint64
	shutdown := &atomic.Bool{}

	return New(0, 1, dpi.NewSignatureEngine(), src, "/tmp/ndpid-go-test-nonexistent.sock", func() uint64 {
		id := nextID
		nextID++
		return id
	}, shutdown, logging.Logger())
}

func TestSingleUDPDatagramProducesNewEvent(t *testing.T) {
	src := &fakeSource{packets: []capture.Packet{
		{
			Data:            ethUDP(net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 1000, 53, make([]byte, 40)),
			TimestampMillis: 0,
		},
	}}
	w := newTestWorker(t, src)

	require.NoError(t, w.Run())
	require.True(t, w.ErrorOrEOF())
	require.Equal(t, uint64(1), w.Stats().FlowsCaptured)
	require.Equal(t, uint64(1), w.Stats().PacketsCaptured)
}

func TestMidstreamTCPFlowIsFlagged(t *testing.T) {
	// A TCP packet with no SYN set, to a fresh flow: the worker should
	// mark it midstream on creation. We only need a single packet's
	// worth of bytes to exercise resolveFlow + updateFlow, not a full
	// handshake.
	eth := make([]byte, 14)
	binary.BigEndian.PutUint16(eth[12:14], 0x0800)
	ip := make([]byte, 20)
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], 40)
	ip[9] = 6 // TCP
	copy(ip[12:16], net.IPv4(10, 0, 0, 1).To4())
	copy(ip[16:20], net.IPv4(10, 0, 0, 2).To4())
	tcp := make([]byte, 20)
	binary.BigEndian.PutUint16(tcp[0:2], 55555)
	binary.BigEndian.PutUint16(tcp[2:4], 443)
	tcp[12] = 5 << 4
	tcp[13] = 0x10 // ACK only, no SYN
	frame := append(eth, ip...)
	frame = append(frame, tcp...)

	src := &fakeSource{packets: []capture.Packet{{Data: frame, TimestampMillis: 0}}}
	w := newTestWorker(t, src)

	require.NoError(t, w.Run())
	require.Equal(t, uint64(1), w.Stats().FlowsCaptured)

	tup := flowtypes.Tuple{
		L3:      flowtypes.L3IPv4,
		Proto:   flowtypes.ProtoTCP,
		SrcAddr: netip.MustParseAddr("10.0.0.1"),
		DstAddr: netip.MustParseAddr("10.0.0.2"),
		SrcPort: 55555,
		DstPort: 443,
	}
	f, ok := w.table.Lookup(computeHashFor(w, tup), tup)
	require.True(t, ok)
	require.True(t, f.IsMidstream)
}

func TestCapacityReachedDropsWithoutNewFlow(t *testing.T) {
	src := &fakeSource{}
	w := newTestWorker(t, src)

	// Fill the table directly to capacity, then feed one more distinct
	// flow through the normal packet path.
	for i := 0; i < 2048; i++ {
		tup := tupleFor(uint16(i))
		hv := computeHashFor(w, tup)
		_, ok := w.table.Insert(uint64(i), tup, hv, w.engine, false)
		require.True(t, ok)
	}

	src.packets = []capture.Packet{{
		Data:            ethUDP(net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2), 60000, 53, nil),
		TimestampMillis: 0,
	}}
	require.NoError(t, w.Run())

	require.Equal(t, uint64(1), w.Stats().CapacityWarnings)
	require.Equal(t, 2048, w.table.ActiveFlows())
}
