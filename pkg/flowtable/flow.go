// Package flowtable implements the per-worker flow table of spec.md §4.3:
// a bank of hash-partitioned ordered search trees holding owned flow
// records, with the directional-symmetry lookup and idle-sweep logic of
// §4.3 and §4.5.
//
// Grounded on google/btree's generic BTreeG (the "ordered search tree"
// spec.md §2 calls for in place of the source's pointer-walked binary
// tree) and on els0r-goProbe/pkg/capture/flow.go's Flow record, whose
// counter/flag field set this mirrors.
package flowtable

import (
	"github.com/flowlens/ndpid-go/pkg/dpi"
	"github.com/flowlens/ndpid-go/pkg/flowtypes"
)

// Flow is the flow record of spec.md §3. It is owned exactly by one
// shard's Table for its entire lifetime.
type Flow struct {
	ID uint64

	Tuple   flowtypes.Tuple
	Hashval uint64

	FirstSeen, LastSeen int64 // milliseconds, source's monotonic domain

	PacketsProcessed uint64
	TotalL4DataLen   uint64
	MinL4DataLen     uint64
	MaxL4DataLen     uint64

	IsMidstream        bool
	FinAckSeen         bool
	AckSeen            bool
	DetectionCompleted bool

	DPIState    dpi.FlowState
	SrcEndpoint dpi.EndpointState
	DstEndpoint dpi.EndpointState

	DetectedProtocol dpi.Protocol
	GuessedProtocol  dpi.Protocol

	// DPIProcessedPkts mirrors num_processed_pkts as last reported by the
	// DPI engine's ProcessPacket call (spec.md §4.4 step 6); zero before
	// the first call.
	DPIProcessedPkts uint32
}

// AvgL4DataLen implements the flow_avg_l4_data_len wire field of spec.md
// §6: total/packets_processed, or 0 when no packets have been processed.
func (f *Flow) AvgL4DataLen() uint64 {
	if f.PacketsProcessed == 0 {
		return 0
	}
	return f.TotalL4DataLen / f.PacketsProcessed
}

// newFlow allocates a flow record from a just-parsed tuple, with
// freshly-zeroed DPI sub-records, per the insertion policy of spec.md
// §4.3.
func newFlow(id uint64, tuple flowtypes.Tuple, hashval uint64, engine dpi.Engine, midstream bool) *Flow {
	return &Flow{
		ID:               id,
		Tuple:            tuple,
		Hashval:          hashval,
		IsMidstream:      midstream,
		DPIState:         engine.NewFlowState(tuple.Proto, tuple.SrcPort, tuple.DstPort),
		SrcEndpoint:      engine.NewEndpointState(),
		DstEndpoint:      engine.NewEndpointState(),
		DetectedProtocol: dpi.Protocol{Master: dpi.Unknown, App: dpi.Unknown, Category: dpi.Unknown},
		GuessedProtocol:  dpi.Protocol{Master: dpi.Unknown, App: dpi.Unknown, Category: dpi.Unknown},
	}
}
