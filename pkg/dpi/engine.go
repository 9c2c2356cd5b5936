// Package dpi defines the contract between the flow engine and the deep
// packet inspection library, which spec.md §1 treats as an external,
// out-of-scope black box exposing four primitives plus a flow-hash
// helper. Engine is that contract.
package dpi

// Protocol is the (master, app, category) triple the DPI engine reports,
// mirroring spec.md §3's detected_l7_protocol / guessed_protocol fields.
type Protocol struct {
	Master   string
	App      string
	Category string
}

// Unknown is the zero-value sentinel protocol name used throughout the
// engine; spec.md §4.4 step 8 gates DETECTED on at least one of
// Master/App being non-UNKNOWN.
const Unknown = "UNKNOWN"

// IsKnown reports whether at least one of Master/App is non-UNKNOWN,
// per spec.md §4.4 step 8 and §3's detection_completed invariant.
func (p Protocol) IsKnown() bool {
	return p.Master != Unknown || p.App != Unknown
}

// FlowState and EndpointState are opaque, engine-owned sub-records.
// spec.md §3 calls these "DPI-owned opaque sub-records"; the core only
// ever allocates, passes, and frees them, never inspects their contents.
type FlowState interface{}
type EndpointState interface{}

// ProcessResult is returned by ProcessPacket.
type ProcessResult struct {
	Protocol          Protocol
	IsDetected        bool
	NumProcessedPkts  uint32
}

// Engine is the black-box DPI library interface named in spec.md §1 and
// §4.4-4.5: Initialize / ProcessPacket / GiveUp / ProtocolName, plus the
// FlowHash primitive named in §3's hashval definition.
type Engine interface {
	// Initialize prepares the engine for use. Called once at worker
	// startup (spec.md §4.7).
	Initialize() error

	// NewFlowState allocates a fresh, zeroed opaque flow sub-record for
	// a newly inserted flow (spec.md §4.3's insertion policy). The
	// 5-tuple is handed over at creation time since real DPI engines
	// (and the give-up heuristics that stand in for one here) key their
	// port-based guesses off it.
	NewFlowState(l4Protocol uint8, srcPort, dstPort uint16) FlowState

	// NewEndpointState allocates a fresh, zeroed opaque endpoint-id
	// sub-record (one is needed per direction, per spec.md §3).
	NewEndpointState() EndpointState

	// FlowHash computes the 64-bit fingerprint named in spec.md §3. The
	// core adds its own "+ l4Protocol + srcPort + dstPort" adjustment on
	// top of whatever this returns (spec.md §3), and falls back to an
	// additive combination of the address bytes if ok is false.
	FlowHash(l4Protocol uint8, srcAddr, dstAddr []byte, srcPort, dstPort uint16) (hash uint64, ok bool)

	// ProcessPacket is the per-packet DPI update (spec.md §4.4 step 7).
	// l3 is the raw L3 buffer (IP header onward); src/dst are the
	// endpoint-id states in capture-order (the caller swaps them when
	// direction_changed is set).
	ProcessPacket(flow FlowState, l3 []byte, timeMs uint64, src, dst EndpointState) ProcessResult

	// GiveUp is the "last chance" terminal classification attempt
	// (spec.md §4.4 step 6, the num_processed_pkts == 0xFE milestone).
	GiveUp(flow FlowState) (guessed Protocol, ok bool)

	// ProtocolName resolves a Protocol back to its human-readable name
	// triple; for the built-in engine this is an identity operation
	// since Protocol already stores names, but the interface keeps the
	// primitive spec.md §1 names explicit for engines that classify by
	// numeric ID internally.
	ProtocolName(p Protocol) Protocol
}

// GiveUpMilestone and ExhaustedMilestone are the num_processed_pkts
// gating values from spec.md §4.4 step 6.
const (
	GiveUpMilestone    uint32 = 0xFE
	ExhaustedMilestone uint32 = 0xFF
)
