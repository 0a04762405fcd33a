package bus

import (
	"strings"
	"time"

	"github.com/axbycc/corebus/wire"
)

// recvTimeout is the subscriber socket's receive timeout: long enough to
// be cheap, short enough that Cleanup's Halt notices promptly, matching
// spec.md §4.3's "1-second receive timeout."
const recvTimeout = time.Second

func (b *Bus) runPublisher() error {
	for {
		req, ok := b.publisherRequests.Read(true)
		if !ok {
			return nil
		}

		if req.BindAddress != "" {
			if req.Topic != "" {
				b.logger.Error("bus: publisher request has both bind address and topic, dropping")
				continue
			}
			if err := b.pubEndpoint.Bind(req.BindAddress); err != nil {
				b.logger.Errorf("bus: publisher bind %q failed: %v", req.BindAddress, err)
			}
			continue
		}

		if req.Topic == "" {
			continue
		}

		var header wire.Header
		if req.Verbatim != nil {
			header = *req.Verbatim
		} else {
			header = wire.Header{
				SenderProcessID:     b.clock.ProcessID(),
				SenderSequenceID:    b.sequenceID.Add(1) - 1,
				SenderProcessTimeUs: b.clock.ProcessTimeUs(),
				ProtocolVersion:     0,
				MessageVersion:      req.MessageVersion,
				Flags:               req.Flags,
			}
		}

		blob := wire.PackDatagram(req.Topic, header, req.Frames)
		if err := b.pubEndpoint.Send(blob); err != nil {
			b.logger.Errorf("bus: publisher send on topic %q failed: %v", req.Topic, err)
			continue
		}

		b.recorderTap(wire.Message{Topic: req.Topic, Header: header, Frames: req.Frames})
	}
}

func (b *Bus) runSubscriber() error {
	var subs []subscription

	for {
		if b.wrk.IsHalted() {
			return nil
		}
		for {
			req, ok := b.subscriberRequests.Read(false)
			if !ok {
				break
			}
			if req.SubscribeTopic != nil {
				subs = append(subs, subscription{prefix: *req.SubscribeTopic, buffer: req.Buffer, item: req.Item})
			}
			if req.ConnectAddress != "" {
				if err := b.subEndpoint.Connect(req.ConnectAddress); err != nil {
					b.logger.Errorf("bus: subscriber connect %q failed: %v", req.ConnectAddress, err)
				}
			}
		}

		blob, err := b.subEndpoint.Recv(recvTimeout)
		if err != nil {
			continue // timeout: loop back to check for stop / new requests
		}

		topic, header, frames, decErr := wire.UnpackDatagram(blob)
		if decErr != nil {
			b.logger.Warningf("bus: dropping malformed datagram: %v", decErr)
			continue
		}
		msg := wire.Message{Topic: topic, Header: header, Frames: frames}

		delivered := false
		for _, s := range subs {
			if !strings.HasPrefix(topic, s.prefix) {
				continue
			}
			delivered = true
			if s.buffer != nil {
				if !s.buffer.Write(msg) {
					b.logger.Warningf("bus: subscriber buffer full for prefix %q", s.prefix)
				}
			}
			if s.item != nil {
				s.item.Write(msg)
			}
		}
		if delivered {
			b.recorderTap(msg)
		}
	}
}

func (b *Bus) runRecorder() error {
	for {
		msg, ok := b.recorderBuffer.Read(true)
		if !ok {
			return nil
		}
		b.recMu.Lock()
		rec := b.recording
		b.recMu.Unlock()
		if rec == nil {
			continue
		}
		if err := rec.Append(msg); err != nil {
			b.logger.Errorf("bus: recorder append failed, ending recording session: %v", err)
			b.recMu.Lock()
			if b.recording == rec {
				b.recording = nil
			}
			b.recMu.Unlock()
		}
	}
}
