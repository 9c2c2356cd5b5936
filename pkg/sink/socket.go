package sink

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/flowlens/ndpid-go/pkg/logging"
)

// Socket is the AF_UNIX SOCK_STREAM collector connection of spec.md
// §4.6. It is not shared between workers (spec.md §5); each worker owns
// exactly one. Grounded on original_source/nDPId.c's
// connect_to_json_socket/send_to_json_sink (non-blocking after connect,
// MSG_NOSIGNAL, reconnect-on-next-event, EPIPE as disconnect), using
// golang.org/x/sys/unix for the raw socket calls in place of nDPId.c's
// direct libc socket()/connect()/fcntl() sequence.
type Socket struct {
	path string
	log  *logging.L

	fd               int
	connected        bool
	reconnectPending bool
}

// NewSocket builds a Socket for path, unconnected.
func NewSocket(path string, log *logging.L) *Socket {
	return &Socket{path: path, log: log, fd: -1}
}

// Connect opens the socket, connects to path, and switches it to
// non-blocking mode, per spec.md §4.6.
func (s *Socket) Connect() error {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return errors.Wrap(err, "failed to create unix socket")
	}

	addr := &unix.SockaddrUnix{Name: s.path}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return errors.Wrapf(err, "failed to connect to %q", s.path)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "failed to set socket non-blocking")
	}

	s.fd = fd
	s.connected = true
	s.reconnectPending = false
	return nil
}

// ConnectBestEffort attempts the initial connection at worker startup
// (spec.md §4.7 step 1). Failure is not fatal: it leaves the socket in
// the same reconnect-pending state a later send failure would, so the
// first successful Send attempt transparently establishes the
// connection.
func (s *Socket) ConnectBestEffort() {
	if err := s.Connect(); err != nil {
		s.log.Warnf("initial connect to collector socket %q failed, will retry: %v", s.path, err)
		s.reconnectPending = true
	}
}

// Connected reports whether the socket currently believes it has a live
// connection (it may not notice a peer-side close until the next send).
func (s *Socket) Connected() bool { return s.connected }

// Send writes payload in a single call with MSG_NOSIGNAL so a broken
// peer never raises SIGPIPE in this process, per spec.md §4.6. If a
// reconnect is pending, it is attempted first; on reconnect failure the
// payload is silently dropped (events during a disconnected interval
// are discarded, per spec.md §7/§9).
func (s *Socket) Send(payload []byte) error {
	if s.reconnectPending {
		if err := s.reconnect(); err != nil {
			return err
		}
		s.log.Infof("Reconnected to collector socket %q", s.path)
	}

	if !s.connected {
		return errNotConnected
	}

	err := unix.Send(s.fd, payload, unix.MSG_NOSIGNAL)
	if err != nil {
		if errors.Is(err, unix.EPIPE) {
			s.log.Warnf("lost connection to collector socket %q", s.path)
		} else {
			s.log.Warnf("send to collector socket %q failed: %v", s.path, err)
		}
		s.markDisconnected()
		return err
	}
	return nil
}

func (s *Socket) markDisconnected() {
	if s.fd >= 0 {
		unix.Close(s.fd)
	}
	s.fd = -1
	s.connected = false
	s.reconnectPending = true
}

func (s *Socket) reconnect() error {
	if s.fd >= 0 {
		unix.Close(s.fd)
		s.fd = -1
	}
	s.connected = false
	if err := s.Connect(); err != nil {
		return err
	}
	return nil
}

// Close releases the socket, if connected.
func (s *Socket) Close() {
	if s.fd >= 0 {
		unix.Close(s.fd)
		s.fd = -1
	}
	s.connected = false
}

var errNotConnected = errors.New("collector socket not connected")
