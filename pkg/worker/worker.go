// Package worker implements the per-shard worker of spec.md §4.7: the
// packet-delivery loop that drives the parser, shard dispatcher, flow
// table, DPI per-packet update and idle scanner for one shard, and ships
// lifecycle events to its own collector socket.
//
// Grounded on original_source/nDPId.c's processing_thread (per-packet
// DPI gating steps, idle-scan trigger piggy-backed on packet arrival)
// and els0r-goProbe/pkg/capture/capture.go's worker-goroutine shape,
// simplified to a single sequential loop since this spec's workers need
// neither command channels nor config hot-reload.
package worker

import (
	"io"
	"sync/atomic"

	"github.com/flowlens/ndpid-go/pkg/capture"
	"github.com/flowlens/ndpid-go/pkg/dpi"
	"github.com/flowlens/ndpid-go/pkg/flowtable"
	"github.com/flowlens/ndpid-go/pkg/logging"
	"github.com/flowlens/ndpid-go/pkg/parser"
	"github.com/flowlens/ndpid-go/pkg/shard"
	"github.com/flowlens/ndpid-go/pkg/sink"
)

// IdleScanPeriodMillis is spec.md §6's IDLE_SCAN_PERIOD.
const IdleScanPeriodMillis = 10_000

// Stats is the cumulative counter set printed by the main thread on
// shutdown, per spec.md §4.7.
type Stats struct {
	PacketsCaptured  uint64
	PacketsProcessed uint64
	TotalL4Bytes     uint64
	FlowsCaptured    uint64
	FlowsIdled       uint64
	FlowsDetected    uint64
	CapacityWarnings uint64
}

// Worker owns exactly one capture handle, one flow table, one
// serializer and one sink socket, per spec.md §5.
type Worker struct {
	index      int
	numWorkers int

	engine dpi.Engine
	source capture.Source
	table  *flowtable.Table

	sinkSocket *sink.Socket
	serializer *sink.Serializer

	log *logging.L

	nextFlowID func() uint64
	shutdown   *atomic.Bool

	lastTime         int64
	lastIdleScanTime int64

	errorOrEOF bool
	stats      Stats
}

// New builds a worker for shard index (of numWorkers total), reading
// from source and shipping events to the collector socket at sinkPath.
// nextFlowID supplies the process-global flow_id counter (spec.md §5).
func New(index, numWorkers int, engine dpi.Engine, source capture.Source, sinkPath string, nextFlowID func() uint64, shutdown *atomic.Bool, log *logging.L) *Worker {
	return &Worker{
		index:      index,
		numWorkers: numWorkers,
		engine:     engine,
		source:     source,
		table:      flowtable.NewTable(flowtable.MaxActiveFlows),
		sinkSocket: sink.NewSocket(sinkPath, log),
		serializer: sink.NewSerializer(),
		log:        log,
		nextFlowID: nextFlowID,
		shutdown:   shutdown,
	}
}

// Stats returns a snapshot of the worker's cumulative counters.
func (w *Worker) Stats() Stats { return w.stats }

// ErrorOrEOF reports whether the worker's capture source has been
// exhausted or errored, per spec.md §3's worker-state fields.
func (w *Worker) ErrorOrEOF() bool { return w.errorOrEOF }

// BreakLoop asks the underlying capture source to unblock a pending
// read, per spec.md §5's cancellation contract. Safe to call
// concurrently from the main goroutine.
func (w *Worker) BreakLoop() { w.source.BreakLoop() }

// Run opens the capture source, connects the sink best-effort, and
// enters the packet-delivery loop of spec.md §4.7. It returns when the
// source is exhausted, errors, or shutdown is requested.
func (w *Worker) Run() error {
	if err := w.source.Open(); err != nil {
		return err
	}
	defer w.source.Close()

	w.sinkSocket.ConnectBestEffort()
	defer w.sinkSocket.Close()

	for {
		if w.shutdown.Load() {
			w.errorOrEOF = true
			return nil
		}

		pkt, err := w.source.NextPacket()
		if err != nil {
			if err != io.EOF {
				w.log.Warnf("shard %d: capture error: %v", w.index, err)
			}
			w.errorOrEOF = true
			return nil
		}

		w.stats.PacketsCaptured++
		w.handlePacket(pkt)
	}
}

func (w *Worker) handlePacket(pkt capture.Packet) {
	if pkt.TimestampMillis > w.lastTime {
		w.lastTime = pkt.TimestampMillis
	}
	w.maybeScanIdle()

	parsed, err := parser.Parse(w.source.LinkType(), pkt.Data)
	if err != nil {
		w.log.Warnf("shard %d: dropping packet %d: %v", w.index, w.stats.PacketsCaptured, err)
		return
	}

	if idx := shard.Index(parsed.Tuple, w.numWorkers); idx != w.index {
		return
	}

	flow, directionChanged, isNew := w.resolveFlow(parsed)
	if flow == nil {
		return
	}
	if isNew {
		// NEW is emitted before updateFlow's counters run, so it always
		// reports flow_l4_data_len=0, matching nDPId.c's FLOW_NEW/
		// packets_processed++ ordering.
		w.emit(flow, sink.EventNew)
	}

	w.updateFlow(flow, parsed, directionChanged)
}

// resolveFlow implements the directional-symmetry lookup and insertion
// policy of spec.md §4.3.
func (w *Worker) resolveFlow(parsed parser.Packet) (flow *flowtable.Flow, directionChanged, isNew bool) {
	hv := flowtable.ComputeHash(w.engine, parsed.Tuple)
	if f, ok := w.table.Lookup(hv, parsed.Tuple); ok {
		return f, false, false
	}

	rev := parsed.Tuple.Reversed()
	hvRev := flowtable.ComputeHash(w.engine, rev)
	if f, ok := w.table.Lookup(hvRev, rev); ok {
		return f, true, false
	}

	if w.table.ActiveFlows() >= flowtable.MaxActiveFlows {
		w.stats.CapacityWarnings++
		w.log.Warnf("shard %d: flow table at capacity (%d), dropping new flow", w.index, flowtable.MaxActiveFlows)
		return nil, false, false
	}

	f, ok := w.table.Insert(w.nextFlowID(), parsed.Tuple, hv, w.engine, parsed.IsMidstream())
	if !ok {
		w.stats.CapacityWarnings++
		return nil, false, false
	}
	w.stats.FlowsCaptured++
	return f, false, true
}

// updateFlow implements the per-packet DPI driver of spec.md §4.4.
func (w *Worker) updateFlow(f *flowtable.Flow, parsed parser.Packet, directionChanged bool) {
	// Step 1.
	f.PacketsProcessed++
	f.TotalL4DataLen += uint64(parsed.L4PayloadLen)
	w.stats.PacketsProcessed++
	w.stats.TotalL4Bytes += uint64(parsed.L4PayloadLen)

	// Step 2.
	ts := w.lastTime
	if f.FirstSeen == 0 {
		f.FirstSeen = ts
	}
	f.LastSeen = ts

	// Step 3.
	f.AckSeen = parsed.ACK

	// Step 4.
	if parsed.FinAck() && !f.FinAckSeen {
		f.FinAckSeen = true
		w.emit(f, sink.EventEnd)
		return
	}

	// Step 5.
	l4Len := uint64(parsed.L4PayloadLen)
	if f.PacketsProcessed == 1 {
		f.MinL4DataLen = l4Len
		f.MaxL4DataLen = l4Len
	} else {
		if l4Len < f.MinL4DataLen {
			f.MinL4DataLen = l4Len
		}
		if l4Len > f.MaxL4DataLen {
			f.MaxL4DataLen = l4Len
		}
	}

	w.driveDPI(f, parsed, directionChanged, ts)
}

// driveDPI implements steps 6-8 of spec.md §4.4. f.DPIProcessedPkts
// holds the num_processed_pkts value returned by the previous call to
// ProcessPacket for this flow (zero before the first call), which is
// what the gating check in step 6 inspects before this packet invokes
// the engine again.
func (w *Worker) driveDPI(f *flowtable.Flow, parsed parser.Packet, directionChanged bool, timestampMs int64) {
	if f.DPIProcessedPkts == dpi.ExhaustedMilestone {
		return
	}

	if f.DPIProcessedPkts == dpi.GiveUpMilestone {
		if f.DetectionCompleted {
			w.emit(f, sink.EventDetected)
		} else if guessed, ok := w.engine.GiveUp(f.DPIState); ok {
			f.GuessedProtocol = guessed
			w.emit(f, sink.EventGuessed)
		} else {
			w.emit(f, sink.EventNotDetected)
		}
	}

	src, dst := f.SrcEndpoint, f.DstEndpoint
	if directionChanged {
		src, dst = dst, src
	}

	result := w.engine.ProcessPacket(f.DPIState, parsed.L3, uint64(timestampMs), src, dst)
	f.DetectedProtocol = result.Protocol
	f.DPIProcessedPkts = result.NumProcessedPkts

	if result.IsDetected && !f.DetectionCompleted && result.Protocol.IsKnown() {
		f.DetectionCompleted = true
		w.stats.FlowsDetected++
		w.emit(f, sink.EventDetected)
	}
}

// maybeScanIdle implements the packet-driven idle scanner trigger of
// spec.md §4.5: never a timer, only ever checked on packet arrival.
func (w *Worker) maybeScanIdle() {
	if w.lastTime-w.lastIdleScanTime < IdleScanPeriodMillis {
		return
	}

	for _, f := range w.table.ScanIdle(w.lastTime) {
		w.emit(f, sink.EventIdle)
		f.DPIState = nil
		f.SrcEndpoint = nil
		f.DstEndpoint = nil
		w.stats.FlowsIdled++
	}
	w.lastIdleScanTime = w.lastTime
}

// emit serializes and ships ev for f, per spec.md §4.6. The serializer
// buffer is reset regardless of send outcome.
func (w *Worker) emit(f *flowtable.Flow, evt sink.EventType) {
	ev := sink.NewEvent(f, evt, w.stats.PacketsCaptured)
	payload := w.serializer.Encode(ev)
	_ = w.sinkSocket.Send(payload)
	w.serializer.Reset()
}
