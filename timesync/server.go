// Package timesync implements the UDP time-synchronization protocol: a
// stateless echo server and a client that estimates the offset between
// this process's monotonic clock and the server's.
//
// Grounded on original_source/time_sync/server.cpp (the bind-recv-echo
// loop) and time_sync.h/client_demo.cpp (the client's public surface:
// init/start_without_time_server/estimate_*/cleanup), with the exact
// wire protocol and client sampling algorithm from spec.md §4.8 since
// client_demo.cpp's body was never checked into original_source/.
package timesync

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/core/worker"
	"github.com/axbycc/corebus/pclock"
)

// HostPort strips the "udp://" scheme from a netconfig kissnet endpoint
// string, returning the bare host:port Listen/Dial expect. Time-sync is
// UDP-only (spec.md §6), so any other scheme is a configuration error.
func HostPort(endpoint string) (string, error) {
	const scheme = "udp://"
	if !strings.HasPrefix(endpoint, scheme) {
		return "", fmt.Errorf("timesync: endpoint %q is not a udp:// address", endpoint)
	}
	return strings.TrimPrefix(endpoint, scheme), nil
}

// requestSize and replySize are the wire sizes spec.md §6 pins: an
// 8-byte little-endian nonce in, a 16-byte (nonce || process_time_us)
// reply out.
const (
	requestSize = 8
	replySize   = 16
)

// Server is a stateless UDP echo: every received nonce is answered with
// that nonce followed by this process's process_time_us.
type Server struct {
	conn   *net.UDPConn
	clock  *pclock.Clock
	logger *logging.Logger
	wrk    worker.Worker
}

// Listen binds address (host:port, no scheme) and starts the echo loop.
func Listen(address string, clock *pclock.Clock, logger *logging.Logger) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{conn: conn, clock: clock, logger: logger}
	s.wrk.Go(s.run)
	return s, nil
}

func (s *Server) run() error {
	buf := make([]byte, requestSize)
	for {
		n, clientAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			// Close closes the socket before halting this goroutine, so any
			// read error here means shutdown is underway.
			return nil
		}
		if n != requestSize {
			continue
		}

		nonce := binary.LittleEndian.Uint64(buf)
		reply := make([]byte, replySize)
		binary.LittleEndian.PutUint64(reply[0:8], nonce)
		binary.LittleEndian.PutUint64(reply[8:16], s.clock.ProcessTimeUs())

		if _, err := s.conn.WriteToUDP(reply, clientAddr); err != nil {
			s.logger.Warningf("timesync: server reply to %s failed: %v", clientAddr, err)
		}
	}
}

// Close releases the socket, which unblocks the echo loop's pending
// read, then waits for it to return.
func (s *Server) Close() error {
	err := s.conn.Close()
	if haltErr := s.wrk.Halt(); err == nil {
		err = haltErr
	}
	return err
}
