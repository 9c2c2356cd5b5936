// Package capture wraps gopacket/pcap behind the Source interface of
// spec.md §2 item 1 and §6: one capture handle per worker, each
// re-opening the same target, transparently choosing live interface
// capture or offline file replay depending on whether the target names
// an existing file.
//
// Grounded on els0r-goProbe/pkg/capture/source.go's Source interface
// shape and postmanlabs-observability-cli/pcap/pcap.go's
// pcap.OpenLive/error-wrapping style, adapted from goProbe's dual
// fako1024/gopacket handles down to the single handle per worker this
// spec calls for.
package capture

import (
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// Tunables named in spec.md §6 for live interface capture.
const (
	snapLen       = 65535
	readTimeout   = 250 * time.Millisecond
	promiscuous   = true
)

// Stats mirrors the capture library's packet accounting, grounded on
// els0r-goProbe/pkg/capture/source.go's CaptureStats.
type Stats struct {
	PacketsReceived  int
	PacketsDropped   int
	PacketsIfDropped int
}

// Packet is a single captured record: timestamp, caplen, len and the raw
// bytes, per spec.md §2 item 1.
type Packet struct {
	Data            []byte
	TimestampMillis int64
	CaptureLength   int
	Length          int
}

// Source is the capture library contract consumed by a worker.
type Source interface {
	// Open acquires the underlying handle; live or offline is decided at
	// construction time (see Target).
	Open() error

	// NextPacket blocks (on a live source) until a packet arrives, or
	// returns io.EOF once an offline source is exhausted.
	NextPacket() (Packet, error)

	LinkType() gopacket.LinkType
	Stats() (Stats, error)

	// BreakLoop causes a concurrent, blocked NextPacket call to return
	// promptly, per spec.md §5's cancellation contract. Safe to call
	// once, from another goroutine, after Open.
	BreakLoop()

	Close() error
}

// Target decides, for a given -i argument, whether it names an existing
// capture file (offline replay) or a live interface, per spec.md §6.
func Target(path string) (isFile bool) {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// PcapSource is the Source implementation backing both live and offline
// capture through gopacket/pcap, per spec.md §6's -i semantics.
type PcapSource struct {
	target string
	isFile bool
	handle *pcap.Handle
}

// NewPcapSource builds a Source for target, deciding live-vs-file at
// construction time so callers (and logs) can report which mode was
// selected before Open is attempted.
func NewPcapSource(target string) *PcapSource {
	return &PcapSource{target: target, isFile: Target(target)}
}

// IsFile reports whether this source replays an offline capture file.
func (s *PcapSource) IsFile() bool { return s.isFile }

// Open acquires the pcap handle, live (promiscuous, 65535-byte snap,
// 250ms read timeout, microsecond timestamps) or offline, per spec.md
// §6.
func (s *PcapSource) Open() error {
	if s.isFile {
		handle, err := pcap.OpenOffline(s.target)
		if err != nil {
			return errors.Wrapf(err, "failed to open capture file %q", s.target)
		}
		s.handle = handle
		return nil
	}

	inactive, err := pcap.NewInactiveHandle(s.target)
	if err != nil {
		return errors.Wrapf(err, "failed to create inactive handle for %q", s.target)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(snapLen); err != nil {
		return errors.Wrap(err, "failed to set snap length")
	}
	if err := inactive.SetPromisc(promiscuous); err != nil {
		return errors.Wrap(err, "failed to set promiscuous mode")
	}
	if err := inactive.SetTimeout(readTimeout); err != nil {
		return errors.Wrap(err, "failed to set read timeout")
	}
	if err := inactive.SetTimestampSource("microsecond"); err != nil {
		// Not every link layer / driver exposes a microsecond source;
		// spec.md §6 only requires we ask for it, not that it succeed.
		_ = err
	}

	handle, err := inactive.Activate()
	if err != nil {
		return errors.Wrapf(err, "failed to activate live capture on %q", s.target)
	}
	s.handle = handle
	return nil
}

// NextPacket reads the next record. On an offline source, pcap.io.EOF
// is returned once the file is exhausted, per spec.md §4.7's
// source-exhaustion path.
func (s *PcapSource) NextPacket() (Packet, error) {
	data, ci, err := s.handle.ZeroCopyReadPacketData()
	if err == io.EOF {
		return Packet{}, io.EOF
	}
	if err != nil {
		return Packet{}, errors.Wrap(err, "capture read failed")
	}
	return Packet{
		Data:            data,
		TimestampMillis: ci.Timestamp.UnixMilli(),
		CaptureLength:   ci.CaptureLength,
		Length:          ci.Length,
	}, nil
}

// LinkType reports the handle's datalink type, consumed by pkg/parser.
func (s *PcapSource) LinkType() gopacket.LinkType {
	return s.handle.LinkType()
}

// Stats reports cumulative libpcap counters.
func (s *PcapSource) Stats() (Stats, error) {
	st, err := s.handle.Stats()
	if err != nil {
		return Stats{}, errors.Wrap(err, "failed to read capture stats")
	}
	return Stats{
		PacketsReceived:  st.PacketsReceived,
		PacketsDropped:   st.PacketsDropped,
		PacketsIfDropped: st.PacketsIfDropped,
	}, nil
}

// BreakLoop closes the handle, which is the primitive gopacket/pcap
// offers to unblock a concurrent, in-flight read (spec.md §5). The
// worker's packet loop treats the resulting error as ordinary source
// exhaustion.
func (s *PcapSource) BreakLoop() {
	if s.handle != nil {
		s.handle.Close()
	}
}

// Close releases the handle. Calling it after BreakLoop is a harmless
// no-op (gopacket/pcap tolerates a second Close).
func (s *PcapSource) Close() error {
	if s.handle != nil {
		s.handle.Close()
	}
	return nil
}
