package transport

import (
	"bytes"
	"fmt"
	"net"
	"sync"
)

// udp has no PUB/SUB primitive of its own, so the bound side runs a
// tiny registration protocol: a connecting subscriber sends a one-byte
// subscribeMarker datagram to the publisher's bound address; the
// publisher's read loop recognizes it, remembers the sender, and from
// then on fans every published blob out to every remembered peer. Any
// other datagram received on the bound socket is discarded. Each published
// blob goes out as-is in one datagram: UDP already preserves datagram
// boundaries, so no framer codec sits in front of this transport the way
// ipc.go uses one for its stream socket.
var subscribeMarker = []byte{0xA5}

type udpPeer struct {
	conn *net.UDPConn

	mu    sync.Mutex
	peers map[string]*net.UDPAddr
}

func bindUDP(hostport string) (peer, error) {
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	p := &udpPeer{conn: conn, peers: map[string]*net.UDPAddr{}}
	go p.acceptRegistrations()
	return p, nil
}

func (p *udpPeer) acceptRegistrations() {
	buf := make([]byte, 1)
	for {
		n, from, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n == 1 && bytes.Equal(buf[:1], subscribeMarker) {
			p.mu.Lock()
			p.peers[from.String()] = from
			p.mu.Unlock()
		}
	}
}

func (p *udpPeer) send(blob []byte) error {
	p.mu.Lock()
	peers := make([]*net.UDPAddr, 0, len(p.peers))
	for _, a := range p.peers {
		peers = append(peers, a)
	}
	p.mu.Unlock()

	var firstErr error
	for _, a := range peers {
		if _, err := p.conn.WriteToUDP(blob, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *udpPeer) close() error { return p.conn.Close() }

type udpSource struct {
	conn *net.UDPConn
}

func connectUDP(hostport string, sink chan []byte) (source, error) {
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(subscribeMarker); err != nil {
		conn.Close()
		return nil, fmt.Errorf("udp subscribe registration: %w", err)
	}

	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			blob := append([]byte(nil), buf[:n]...)
			select {
			case sink <- blob:
			default:
			}
		}
	}()

	return &udpSource{conn: conn}, nil
}

func (s *udpSource) close() error { return s.conn.Close() }
