package transport

import (
	"io"
	"net"
	"sync"

	"code.hybscloud.com/framer"
)

// ipc carries the datagram over a Unix domain stream socket, so unlike
// udp it needs framer's BinaryStream mode to recover message boundaries
// that a stream transport doesn't preserve on its own.

type ipcConn struct {
	conn net.Conn
	w    io.Writer
}

type ipcPeer struct {
	listener net.Listener

	mu    sync.Mutex
	conns []*ipcConn
}

func bindIPC(path string) (peer, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	p := &ipcPeer{listener: l}
	go p.acceptLoop()
	return p, nil
}

func (p *ipcPeer) acceptLoop() {
	for {
		c, err := p.listener.Accept()
		if err != nil {
			return
		}
		ic := &ipcConn{conn: c, w: framer.NewWriter(c, framer.WithProtocol(framer.BinaryStream))}
		p.mu.Lock()
		p.conns = append(p.conns, ic)
		p.mu.Unlock()
	}
}

func (p *ipcPeer) send(blob []byte) error {
	p.mu.Lock()
	conns := append([]*ipcConn(nil), p.conns...)
	p.mu.Unlock()

	var firstErr error
	live := conns[:0]
	for _, ic := range conns {
		if _, err := ic.w.Write(blob); err != nil {
			ic.conn.Close()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		live = append(live, ic)
	}

	p.mu.Lock()
	p.conns = live
	p.mu.Unlock()
	return firstErr
}

func (p *ipcPeer) close() error {
	p.mu.Lock()
	for _, ic := range p.conns {
		ic.conn.Close()
	}
	p.conns = nil
	p.mu.Unlock()
	return p.listener.Close()
}

type ipcSource struct {
	conn net.Conn
}

func connectIPC(path string, sink chan []byte) (source, error) {
	c, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	r := framer.NewReader(c, framer.WithProtocol(framer.BinaryStream))

	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				blob := append([]byte(nil), buf[:n]...)
				select {
				case sink <- blob:
				default:
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return &ipcSource{conn: c}, nil
}

func (s *ipcSource) close() error { return s.conn.Close() }
