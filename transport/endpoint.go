// Package transport implements the bus's three wire carriers —
// inproc://, udp://, and ipc:// — behind one Endpoint type, so the bus's
// publisher and subscriber worker loops never branch on transport kind.
//
// Grounded on original_source/app/pubsub.cpp's zmq PUB/SUB bind/connect
// model (bind = accept peers and fan a send out to all of them; connect =
// attach to a peer and receive its fan-out) and on
// hayabusa-cloud-framer's framer.Protocol adapter. Each logical
// wire.PackDatagram blob travels as exactly one message: inproc passes
// it over a channel, udp sends it as one datagram, and only ipc, whose
// Unix domain stream socket has no message boundaries, wraps it in a
// framer BinaryStream frame.
package transport

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Error reports an endpoint bind/connect/send/recv failure, matching
// spec.md §6's TransportError.
type Error struct {
	Op      string
	Address string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrRecvTimeout is returned by Recv when no message arrives within the
// given timeout, matching the subscriber thread's "1-second receive
// timeout" loop-and-check-for-stop pattern in spec.md §4.3.
var ErrRecvTimeout = fmt.Errorf("transport: receive timed out")

// peer is one scheme's bound-side resource: something this endpoint can
// broadcast a blob to.
type peer interface {
	send(blob []byte) error
	close() error
}

// source is one scheme's connect-side resource: something feeding
// received blobs into this endpoint's fan-in channel.
type source interface {
	close() error
}

// Endpoint is a bidirectional, multi-peer bus transport handle. A single
// Endpoint may Bind to at most one address (the publisher role: "the
// socket" in spec.md §4.3) and Connect to any number of addresses (the
// subscriber role, which may aggregate several upstream publishers).
type Endpoint struct {
	mu      sync.Mutex
	bound   peer
	sources []source
	recvCh  chan []byte
	closed  bool
}

// New returns an unbound, unconnected Endpoint ready for Bind and/or
// Connect calls.
func New() *Endpoint {
	return &Endpoint{recvCh: make(chan []byte, 256)}
}

// Bind makes this endpoint the publisher side of address: for inproc,
// it registers (or adopts) the named hub; for ipc, it listens and
// accepts connections; for udp, it opens a local socket and waits for
// subscriber registration datagrams. Only one Bind per Endpoint is
// supported, matching one publisher socket per spec.md §4.3.
func (e *Endpoint) Bind(address string) error {
	scheme, rest, err := parseAddress(address)
	if err != nil {
		return &Error{Op: "bind", Address: address, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bound != nil {
		return &Error{Op: "bind", Address: address, Err: fmt.Errorf("endpoint already bound")}
	}

	var p peer
	switch scheme {
	case "inproc":
		p, err = bindInproc(rest)
	case "udp":
		p, err = bindUDP(rest)
	case "ipc":
		p, err = bindIPC(rest)
	default:
		err = fmt.Errorf("unknown scheme %q", scheme)
	}
	if err != nil {
		return &Error{Op: "bind", Address: address, Err: err}
	}
	e.bound = p
	return nil
}

// Connect attaches this endpoint as a receiver of address's fan-out.
// Connect may be called more than once to aggregate several upstream
// publishers into one subscriber Recv stream, per spec.md §4.3's
// "Each connect_address connects the socket to a peer."
func (e *Endpoint) Connect(address string) error {
	scheme, rest, err := parseAddress(address)
	if err != nil {
		return &Error{Op: "connect", Address: address, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return &Error{Op: "connect", Address: address, Err: fmt.Errorf("endpoint closed")}
	}

	var s source
	switch scheme {
	case "inproc":
		s, err = connectInproc(rest, e.recvCh)
	case "udp":
		s, err = connectUDP(rest, e.recvCh)
	case "ipc":
		s, err = connectIPC(rest, e.recvCh)
	default:
		err = fmt.Errorf("unknown scheme %q", scheme)
	}
	if err != nil {
		return &Error{Op: "connect", Address: address, Err: err}
	}
	e.sources = append(e.sources, s)
	return nil
}

// Send broadcasts blob to every peer connected (or registered) on the
// bound address. On inproc a subscriber whose queue is full drops the
// message rather than stalling the publisher thread; udp issues one
// datagram write per registered peer. On ipc the blob is written to each
// connected stream in turn, and that write blocks while a peer's socket
// buffer is full.
func (e *Endpoint) Send(blob []byte) error {
	e.mu.Lock()
	bound := e.bound
	e.mu.Unlock()
	if bound == nil {
		return &Error{Op: "send", Address: "", Err: fmt.Errorf("endpoint not bound")}
	}
	if err := bound.send(blob); err != nil {
		return &Error{Op: "send", Address: "", Err: err}
	}
	return nil
}

// Recv waits up to timeout for the next received blob. It returns
// ErrRecvTimeout, not an *Error, when the timeout elapses with nothing
// received, since that is the subscriber thread's normal "check for
// stop" wakeup, not a transport failure.
func (e *Endpoint) Recv(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case blob := <-e.recvCh:
		return blob, nil
	case <-timer.C:
		return nil, ErrRecvTimeout
	}
}

// Close tears down the bound peer and every connected source.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if e.bound != nil {
		if err := e.bound.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range e.sources {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func parseAddress(address string) (scheme, rest string, err error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" {
		return "", "", fmt.Errorf("address %q missing scheme", address)
	}
	switch u.Scheme {
	case "inproc":
		return "inproc", u.Host, nil
	case "ipc":
		return "ipc", u.Path, nil
	case "udp":
		return "udp", u.Host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
