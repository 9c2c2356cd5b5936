package flowtable

import (
	"github.com/google/btree"

	"github.com/flowlens/ndpid-go/pkg/dpi"
	"github.com/flowlens/ndpid-go/pkg/flowtypes"
)

// Tunable constants named in spec.md §6.
const (
	MaxActiveFlows        = 2048
	MaxIdleFlowsPerThread = 64
	MaxIdleTimeMillis     = 300_000

	btreeDegree = 32
)

// Table is one worker's bank of hash-partitioned ordered search trees,
// spec.md §4.3. Index i holds every flow whose hashval mod len(roots)
// equals i; within a root, flows are ordered by compareFlows.
type Table struct {
	roots  []*btree.BTreeG[*Flow]
	active int
}

// NewTable allocates a table with capacity independent roots, one per
// hash slot. capacity is MaxActiveFlows in production; tests may pass a
// smaller value to exercise the capacity-reached path cheaply.
func NewTable(capacity int) *Table {
	roots := make([]*btree.BTreeG[*Flow], capacity)
	for i := range roots {
		roots[i] = btree.NewG(btreeDegree, flowLess)
	}
	return &Table{roots: roots}
}

// ActiveFlows reports cur_active_flows (spec.md §3).
func (t *Table) ActiveFlows() int { return t.active }

// Capacity reports max_active_flows.
func (t *Table) Capacity() int { return len(t.roots) }

func (t *Table) root(hashval uint64) *btree.BTreeG[*Flow] {
	return t.roots[hashval%uint64(len(t.roots))]
}

// ComputeHash implements the hashval primitive of spec.md §3: the DPI
// engine's flow-hash over (l4_protocol, src_addr, dst_addr, src_port,
// dst_port), falling back to an additive combination of the address
// bytes when the engine declines, then adjusted by
// + l4_protocol + src_port + dst_port.
//
// This is computed directly over the tuple as captured, not a
// direction-canonicalized form; the table's directional-symmetry lookup
// below compensates by recomputing the hash for the reversed tuple on a
// miss, rather than relying on the hash itself being symmetric.
func ComputeHash(engine dpi.Engine, tuple flowtypes.Tuple) uint64 {
	src := tuple.SrcAddr.AsSlice()
	dst := tuple.DstAddr.AsSlice()

	h, ok := engine.FlowHash(tuple.Proto, src, dst, tuple.SrcPort, tuple.DstPort)
	if !ok {
		h = additiveFallback(src, dst)
	}
	h += uint64(tuple.Proto) + uint64(tuple.SrcPort) + uint64(tuple.DstPort)
	return h
}

func additiveFallback(src, dst []byte) uint64 {
	var sum uint64
	for _, b := range src {
		sum += uint64(b)
	}
	for _, b := range dst {
		sum += uint64(b)
	}
	return sum
}

// Lookup finds the flow matching tuple with the given precomputed hash,
// trying only the natural (as-captured) direction. Callers implement the
// full directional-symmetry probe (spec.md §4.3) by calling this twice:
// once with (tuple, ComputeHash(engine, tuple)), and on miss again with
// (tuple.Reversed(), ComputeHash(engine, tuple.Reversed())).
func (t *Table) Lookup(hashval uint64, tuple flowtypes.Tuple) (*Flow, bool) {
	probe := &Flow{Hashval: hashval, Tuple: tuple}
	return t.root(hashval).Get(probe)
}

// Insert allocates and inserts a new flow for tuple, enforcing the
// capacity policy of spec.md §4.3: when the table is at capacity, no
// flow is created and ok is false. id is the caller-assigned process-
// global flow_id (spec.md §3).
func (t *Table) Insert(id uint64, tuple flowtypes.Tuple, hashval uint64, engine dpi.Engine, midstream bool) (*Flow, bool) {
	if t.active >= len(t.roots) {
		return nil, false
	}

	f := newFlow(id, tuple, hashval, engine, midstream)
	t.root(hashval).ReplaceOrInsert(f)
	t.active++
	return f, true
}

// Delete removes f from its tree slot, per the destruction path of
// spec.md §3's Lifecycle paragraph. Callers are responsible for freeing
// DPI sub-records (clearing f.DPIState/SrcEndpoint/DstEndpoint) before or
// after calling Delete; Table itself treats them as opaque.
func (t *Table) Delete(f *Flow) {
	if _, ok := t.root(f.Hashval).Delete(f); ok {
		t.active--
	}
}

func isIdle(f *Flow, lastTime int64) bool {
	if f.FinAckSeen && f.AckSeen {
		return true
	}
	return f.LastSeen+MaxIdleTimeMillis < lastTime
}

// ScanIdle implements the idle scanner of spec.md §4.5: it walks every
// root in order, stages up to MaxIdleFlowsPerThread qualifying flows
// (deferring any excess to the next sweep), then drains the staging
// vector LIFO, removing each flow from its tree and returning them in
// drain order so the caller can emit one IDLE event per flow and free
// its DPI sub-records.
func (t *Table) ScanIdle(lastTime int64) []*Flow {
	staging := make([]*Flow, 0, MaxIdleFlowsPerThread)

	for _, root := range t.roots {
		if len(staging) >= MaxIdleFlowsPerThread {
			break
		}
		if root.Len() == 0 {
			continue
		}
		root.Ascend(func(f *Flow) bool {
			if len(staging) >= MaxIdleFlowsPerThread {
				return false
			}
			if isIdle(f, lastTime) {
				staging = append(staging, f)
			}
			return true
		})
	}

	drained := make([]*Flow, 0, len(staging))
	for i := len(staging) - 1; i >= 0; i-- {
		f := staging[i]
		t.Delete(f)
		drained = append(drained, f)
	}
	return drained
}
