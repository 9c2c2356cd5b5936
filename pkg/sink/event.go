// Package sink implements the event serializer and collector socket of
// spec.md §4.6: a flat JSON object per flow-lifecycle transition,
// written to a local AF_UNIX stream socket with lazy reconnect.
package sink

import (
	"strconv"

	"github.com/flowlens/ndpid-go/pkg/flowtable"
	"github.com/flowlens/ndpid-go/pkg/flowtypes"
)

// EventType enumerates the flow_event discriminator of spec.md §4.6/§6.
type EventType string

const (
	EventNew         EventType = "new"
	EventEnd         EventType = "end"
	EventIdle        EventType = "idle"
	EventGuessed     EventType = "guessed"
	EventDetected    EventType = "detected"
	EventNotDetected EventType = "not-detected"
)

// Event is the flattened wire representation of spec.md §6. DPIFields
// carries whatever extra string-keyed metadata the DPI engine's
// dpi2json primitive would append (protocol names, category, per-
// protocol metadata); the built-in engine contributes the detected/
// guessed protocol triples.
type Event struct {
	FlowEvent EventType

	FlowID            uint64
	FlowL4DataLen     uint64
	FlowMinL4DataLen  uint64
	FlowMaxL4DataLen  uint64
	FlowAvgL4DataLen  uint64
	PacketID          uint64
	Midstream         bool
	L3Proto           string
	SrcIP             string
	DestIP            string
	SrcPort, DstPort  uint16
	L4Proto           string

	// DPIFields is ordered (not a map) so repeated encodings of the same
	// event produce byte-identical output, per spec.md §8's replay-
	// determinism property.
	DPIFields []KV
}

// KV is a single ordered wire field appended after the fixed event
// schema of spec.md §6.
type KV struct {
	Key, Value string
}

func l3ProtoName(t flowtypes.L3Type) string {
	switch t {
	case flowtypes.L3IPv4:
		return "ip4"
	case flowtypes.L3IPv6:
		return "ip6"
	default:
		return "unknown"
	}
}

func l4ProtoName(proto uint8) string {
	if name := flowtypes.L4Name(proto); name != "" {
		return name
	}
	return strconv.Itoa(int(proto))
}

// NewEvent builds the wire event for a flow-lifecycle transition,
// per spec.md §6. packetID is the worker's packets_captured counter at
// emission time.
func NewEvent(f *flowtable.Flow, evt EventType, packetID uint64) Event {
	e := Event{
		FlowEvent:        evt,
		FlowID:           f.ID,
		FlowL4DataLen:    f.TotalL4DataLen,
		FlowMinL4DataLen: f.MinL4DataLen,
		FlowMaxL4DataLen: f.MaxL4DataLen,
		FlowAvgL4DataLen: f.AvgL4DataLen(),
		PacketID:         packetID,
		Midstream:        f.IsMidstream,
		L3Proto:          l3ProtoName(f.Tuple.L3),
		SrcIP:            f.Tuple.SrcAddr.String(),
		DestIP:           f.Tuple.DstAddr.String(),
		SrcPort:          f.Tuple.SrcPort,
		DstPort:          f.Tuple.DstPort,
		L4Proto:          l4ProtoName(f.Tuple.Proto),
	}

	switch evt {
	case EventDetected:
		e.DPIFields = protocolFields("detected", f.DetectedProtocol.Master, f.DetectedProtocol.App, f.DetectedProtocol.Category)
	case EventGuessed:
		e.DPIFields = protocolFields("guessed", f.GuessedProtocol.Master, f.GuessedProtocol.App, f.GuessedProtocol.Category)
	}

	return e
}

func protocolFields(prefix, master, app, category string) []KV {
	return []KV{
		{prefix + "_master_protocol", master},
		{prefix + "_app_protocol", app},
		{prefix + "_category", category},
	}
}
