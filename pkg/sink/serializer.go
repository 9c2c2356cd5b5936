package sink

import (
	jsoniter "github.com/json-iterator/go"
)

// Serializer encodes Events into the flat JSON wire object of spec.md
// §6, reusing a single jsoniter.Stream buffer across emissions so no
// per-event allocation is needed, per spec.md §4.6 and §9's "per-worker
// owned serializer buffer" design note. Grounded on
// els0r-goProbe/pkg/capture/flow.go's use of json-iterator/go, adapted
// from one-shot Marshal calls to the streaming encoder for buffer reuse.
type Serializer struct {
	stream *jsoniter.Stream
}

// NewSerializer allocates a serializer with its own reusable buffer.
func NewSerializer() *Serializer {
	return &Serializer{
		stream: jsoniter.NewStream(jsoniter.ConfigCompatibleWithStandardLibrary, nil, 512),
	}
}

// Encode renders ev into the serializer's buffer and returns it. The
// returned slice is only valid until the next call to Encode or Reset.
func (s *Serializer) Encode(ev Event) []byte {
	s.Reset()

	st := s.stream
	st.WriteObjectStart()

	st.WriteObjectField("flow_event")
	st.WriteString(string(ev.FlowEvent))
	st.WriteMore()

	st.WriteObjectField("flow_id")
	st.WriteUint64(ev.FlowID)
	st.WriteMore()

	st.WriteObjectField("flow_l4_data_len")
	st.WriteUint64(ev.FlowL4DataLen)
	st.WriteMore()

	st.WriteObjectField("flow_min_l4_data_len")
	st.WriteUint64(ev.FlowMinL4DataLen)
	st.WriteMore()

	st.WriteObjectField("flow_max_l4_data_len")
	st.WriteUint64(ev.FlowMaxL4DataLen)
	st.WriteMore()

	st.WriteObjectField("flow_avg_l4_data_len")
	st.WriteUint64(ev.FlowAvgL4DataLen)
	st.WriteMore()

	st.WriteObjectField("packet_id")
	st.WriteUint64(ev.PacketID)
	st.WriteMore()

	st.WriteObjectField("midstream")
	if ev.Midstream {
		st.WriteUint8(1)
	} else {
		st.WriteUint8(0)
	}
	st.WriteMore()

	st.WriteObjectField("l3_proto")
	st.WriteString(ev.L3Proto)
	st.WriteMore()

	st.WriteObjectField("src_ip")
	st.WriteString(ev.SrcIP)
	st.WriteMore()

	st.WriteObjectField("dest_ip")
	st.WriteString(ev.DestIP)

	// src_port/dst_port are omitted entirely when zero, per spec.md §6.
	if ev.SrcPort != 0 {
		st.WriteMore()
		st.WriteObjectField("src_port")
		st.WriteUint16(ev.SrcPort)
	}
	if ev.DstPort != 0 {
		st.WriteMore()
		st.WriteObjectField("dst_port")
		st.WriteUint16(ev.DstPort)
	}

	st.WriteMore()
	st.WriteObjectField("l4_proto")
	st.WriteString(ev.L4Proto)

	for _, kv := range ev.DPIFields {
		st.WriteMore()
		st.WriteObjectField(kv.Key)
		st.WriteString(kv.Value)
	}

	st.WriteObjectEnd()

	return st.Buffer()
}

// Reset clears the encoder's buffer, called both before Encode and
// unconditionally after every send attempt (spec.md §4.6), regardless
// of whether the send succeeded.
func (s *Serializer) Reset() {
	s.stream.Error = nil
	s.stream.SetBuffer(s.stream.Buffer()[:0])
}
