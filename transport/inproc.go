package transport

import (
	"fmt"
	"sync"
)

// inproc hubs are process-global, named in-memory fan-out points. The
// default bus endpoint inproc://pubsub is exactly one such hub, bound
// and connected automatically at init per spec.md §6.
var (
	hubsMu sync.Mutex
	hubs   = map[string]*inprocHub{}
)

type inprocHub struct {
	mu   sync.Mutex
	subs []chan []byte
}

func getOrCreateHub(name string) *inprocHub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	h, ok := hubs[name]
	if !ok {
		h = &inprocHub{}
		hubs[name] = h
	}
	return h
}

func (h *inprocHub) subscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, ch)
}

func (h *inprocHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s == ch {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}

func (h *inprocHub) broadcast(blob []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- blob:
		default:
			// drop on full, matching the ring buffers' drop-on-full policy
		}
	}
}

type inprocPeer struct {
	hub *inprocHub
}

func bindInproc(name string) (peer, error) {
	if name == "" {
		return nil, fmt.Errorf("inproc: empty name")
	}
	return &inprocPeer{hub: getOrCreateHub(name)}, nil
}

func (p *inprocPeer) send(blob []byte) error {
	p.hub.broadcast(blob)
	return nil
}

func (p *inprocPeer) close() error { return nil }

type inprocSource struct {
	hub *inprocHub
	ch  chan []byte
}

func connectInproc(name string, sink chan []byte) (source, error) {
	if name == "" {
		return nil, fmt.Errorf("inproc: empty name")
	}
	hub := getOrCreateHub(name)
	relay := make(chan []byte, 256)
	hub.subscribe(relay)

	go func() {
		for blob := range relay {
			select {
			case sink <- blob:
			default:
			}
		}
	}()

	return &inprocSource{hub: hub, ch: relay}, nil
}

func (s *inprocSource) close() error {
	s.hub.unsubscribe(s.ch)
	close(s.ch)
	return nil
}
