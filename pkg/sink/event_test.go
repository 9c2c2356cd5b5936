package sink

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowlens/ndpid-go/pkg/dpi"
	"github.com/flowlens/ndpid-go/pkg/flowtable"
	"github.com/flowlens/ndpid-go/pkg/flowtypes"
)

func TestNewEventIPv6Normalizes(t *testing.T) {
	engine := dpi.NewSignatureEngine()
	tbl := flowtable.NewTable(flowtable.MaxActiveFlows)

	tuple := flowtypes.Tuple{
		L3:      flowtypes.L3IPv6,
		Proto:   flowtypes.ProtoUDP,
		SrcAddr: netip.MustParseAddr("2001:db8:0:0:0:0:0:1"),
		DstAddr: netip.MustParseAddr("2001:db8::2"),
		SrcPort: 1234,
		DstPort: 53,
	}
	hv := flowtable.ComputeHash(engine, tuple)
	f, ok := tbl.Insert(0, tuple, hv, engine, false)
	require.True(t, ok)
	f.TotalL4DataLen = 300
	f.PacketsProcessed = 3

	ev := NewEvent(f, EventNew, 7)
	require.Equal(t, "2001:db8::1", ev.SrcIP)
	require.Equal(t, "2001:db8::2", ev.DestIP)
	require.Equal(t, "ip6", ev.L3Proto)
	require.Equal(t, uint64(100), ev.FlowAvgL4DataLen)
	require.Equal(t, uint64(7), ev.PacketID)
}

func TestNewEventMidstreamFlag(t *testing.T) {
	engine := dpi.NewSignatureEngine()
	tbl := flowtable.NewTable(flowtable.MaxActiveFlows)

	tuple := flowtypes.Tuple{
		L3:      flowtypes.L3IPv4,
		Proto:   flowtypes.ProtoTCP,
		SrcAddr: netip.MustParseAddr("10.0.0.1"),
		DstAddr: netip.MustParseAddr("10.0.0.2"),
		SrcPort: 4444,
		DstPort: 443,
	}
	hv := flowtable.ComputeHash(engine, tuple)
	f, ok := tbl.Insert(0, tuple, hv, engine, true)
	require.True(t, ok)

	ev := NewEvent(f, EventNew, 1)
	require.True(t, ev.Midstream)
}
