package dpi

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// SignatureEngine is a minimal built-in Engine implementation. It is not a
// substitute for a real DPI library — no port/byte-signature heuristic
// comes close to covering what a production engine does — it exists only
// to give pkg/worker and pkg/engine a concrete, dependency-free Engine to
// run and be tested against, the way a fresh capture.Source
// implementation gives els0r-goProbe's Source interface something to run
// against in tests.
type SignatureEngine struct {
	signatures []signature
}

type signature struct {
	protocol  Protocol
	l4Proto   uint8
	port      uint16
	minPktLen int
	prefix    []byte
}

// NewSignatureEngine builds the built-in engine with a small table of
// well-known port/prefix signatures. Matching (see match) compares only
// the minimum length and the byte prefix: the port and l4Proto fields of
// an entry are not consulted, and an entry without a prefix (DNS) never
// matches.
func NewSignatureEngine() *SignatureEngine {
	return &SignatureEngine{
		signatures: []signature{
			{Protocol{"TLS", "HTTPS", "Web"}, 6, 443, 6, []byte{0x16, 0x03}},
			{Protocol{"HTTP", "HTTP", "Web"}, 6, 80, 4, []byte("GET ")},
			{Protocol{"HTTP", "HTTP", "Web"}, 6, 80, 5, []byte("POST ")},
			{Protocol{"DNS", "DNS", "Network"}, 17, 53, 12, nil},
			{Protocol{"SSH", "SSH", "Network"}, 6, 22, 4, []byte("SSH-")},
		},
	}
}

// Initialize is a no-op for the built-in engine.
func (e *SignatureEngine) Initialize() error { return nil }

// NewFlowState allocates the per-flow scratch record the built-in engine
// uses to track how many packets it has inspected (mirrors nDPId.c's
// num_processed_pkts counter).
func (e *SignatureEngine) NewFlowState(l4Protocol uint8, srcPort, dstPort uint16) FlowState {
	return &signatureFlowState{
		l4Protocol: l4Protocol,
		srcPort:    srcPort,
		dstPort:    dstPort,
	}
}

// NewEndpointState is a no-op for the built-in engine: it carries no
// per-endpoint state.
func (e *SignatureEngine) NewEndpointState() EndpointState {
	return &struct{}{}
}

type signatureFlowState struct {
	l4Protocol       uint8
	srcPort, dstPort uint16
	numProcessedPkts uint32
	protocol         Protocol
	detected         bool
}

// portGuesses is the give-up fallback table: well-known ports that the
// engine is willing to guess a protocol for once prefix matching during
// the normal processing window has failed to identify the flow.
var portGuesses = map[uint16]Protocol{
	80:   {"HTTP", "HTTP", "Web"},
	443:  {"TLS", "HTTPS", "Web"},
	53:   {"DNS", "DNS", "Network"},
	22:   {"SSH", "SSH", "Network"},
	25:   {"SMTP", "SMTP", "Mail"},
	3306: {"MySQL", "MySQL", "Database"},
}

// FlowHash implements the primitive named in spec.md §3 using xxh3 over
// the canonical (l4Protocol, srcAddr, dstAddr, srcPort, dstPort) tuple.
func (e *SignatureEngine) FlowHash(l4Protocol uint8, srcAddr, dstAddr []byte, srcPort, dstPort uint16) (uint64, bool) {
	if len(srcAddr) == 0 || len(dstAddr) == 0 {
		return 0, false
	}

	buf := make([]byte, 0, len(srcAddr)+len(dstAddr)+5)
	buf = append(buf, l4Protocol)
	buf = append(buf, srcAddr...)
	buf = append(buf, dstAddr...)

	var portBuf [4]byte
	binary.BigEndian.PutUint16(portBuf[0:2], srcPort)
	binary.BigEndian.PutUint16(portBuf[2:4], dstPort)
	buf = append(buf, portBuf[:]...)

	return xxh3.Hash(buf), true
}

// ProcessPacket looks for a matching signature in the packet's L4 payload
// and, once a threshold of packets has been seen without a match, reports
// the flow as undetected so the driver can hit the give-up milestone.
func (e *SignatureEngine) ProcessPacket(flow FlowState, l3 []byte, _ uint64, _, _ EndpointState) ProcessResult {
	fs, _ := flow.(*signatureFlowState)
	if fs == nil {
		return ProcessResult{Protocol: Protocol{Unknown, Unknown, Unknown}}
	}

	if fs.numProcessedPkts < ExhaustedMilestone {
		fs.numProcessedPkts++
	}

	if !fs.detected {
		if proto, ok := e.match(l3); ok {
			fs.protocol = proto
			fs.detected = true
		}
	}

	result := ProcessResult{
		NumProcessedPkts: fs.numProcessedPkts,
	}
	if fs.detected {
		result.Protocol = fs.protocol
		result.IsDetected = true
	} else {
		result.Protocol = Protocol{Unknown, Unknown, Unknown}
	}
	return result
}

func (e *SignatureEngine) match(l3 []byte) (Protocol, bool) {
	for _, sig := range e.signatures {
		if len(l3) < sig.minPktLen {
			continue
		}
		if len(sig.prefix) == 0 {
			continue
		}
		if len(l3) >= len(sig.prefix) && hasPrefix(l3, sig.prefix) {
			return sig.protocol, true
		}
	}
	return Protocol{}, false
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// GiveUp implements the "last chance" terminal classification named in
// spec.md §4.4 step 6: it looks the flow's destination port, then its
// source port, up in portGuesses, since at this point the prefix match
// has already failed.
func (e *SignatureEngine) GiveUp(flow FlowState) (Protocol, bool) {
	fs, _ := flow.(*signatureFlowState)
	if fs == nil || fs.detected {
		return Protocol{}, false
	}
	if p, ok := portGuesses[fs.dstPort]; ok {
		return p, true
	}
	if p, ok := portGuesses[fs.srcPort]; ok {
		return p, true
	}
	return Protocol{}, false
}

// ProtocolName is an identity mapping for the built-in engine, since its
// Protocol values already carry human-readable names.
func (e *SignatureEngine) ProtocolName(p Protocol) Protocol {
	return p
}
