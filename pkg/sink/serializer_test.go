package sink

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeOmitsZeroPorts(t *testing.T) {
	s := NewSerializer()

	buf := s.Encode(Event{
		FlowEvent: EventNew,
		FlowID:    1,
		L3Proto:   "ip4",
		SrcIP:     "10.0.0.1",
		DestIP:    "10.0.0.2",
		SrcPort:   0,
		DstPort:   53,
		L4Proto:   "udp",
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf, &decoded))
	_, hasSrcPort := decoded["src_port"]
	require.False(t, hasSrcPort)
	require.Equal(t, float64(53), decoded["dst_port"])
}

func TestEncodeReusesBufferAcrossCalls(t *testing.T) {
	s := NewSerializer()

	first := s.Encode(Event{FlowEvent: EventNew, FlowID: 1, L3Proto: "ip4", SrcIP: "a", DestIP: "b", L4Proto: "udp"})
	firstCopy := append([]byte(nil), first...)

	second := s.Encode(Event{FlowEvent: EventEnd, FlowID: 2, L3Proto: "ip6", SrcIP: "c", DestIP: "d", L4Proto: "tcp"})

	require.NotEqual(t, string(firstCopy), string(second))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(second, &decoded))
	require.Equal(t, "end", decoded["flow_event"])
	require.Equal(t, float64(2), decoded["flow_id"])
}

func TestEncodeAppendsDPIFieldsInOrder(t *testing.T) {
	s := NewSerializer()

	buf := s.Encode(Event{
		FlowEvent: EventDetected,
		FlowID:    1,
		L3Proto:   "ip4",
		SrcIP:     "a",
		DestIP:    "b",
		L4Proto:   "tcp",
		DPIFields: []KV{{"detected_master_protocol", "TLS"}, {"detected_app_protocol", "HTTPS"}},
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf, &decoded))
	require.Equal(t, "TLS", decoded["detected_master_protocol"])
	require.Equal(t, "HTTPS", decoded["detected_app_protocol"])
}
