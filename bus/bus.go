// Package bus implements the publish/subscribe core: one publisher
// worker, one subscriber worker, and one recorder worker, each owning a
// request ring and talking to the wire through a transport.Endpoint.
//
// Grounded on original_source/app/pubsub.cpp/h (the three worker-thread
// loops, PublisherRequest/SubscriberRequest shapes, topic-prefix routing,
// per-socket sequence stamping) and on client2/connection.go's
// request-struct-over-a-channel-to-one-owning-goroutine idiom, adapted
// here to request-struct-over-a-ring.Buffer to preserve the source's
// explicit backpressure/drop-on-full contract.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/core/worker"
	"github.com/axbycc/corebus/pclock"
	"github.com/axbycc/corebus/ring"
	"github.com/axbycc/corebus/slot"
	"github.com/axbycc/corebus/transport"
	"github.com/axbycc/corebus/wire"
)

// DefaultEndpoint is the in-process endpoint bound and connected
// automatically at Init, per spec.md §6.
const DefaultEndpoint = "inproc://pubsub"

const (
	publisherRequestCapacity  = 21
	subscriberRequestCapacity = 21
	recorderBufferCapacity    = 121
)

// ErrNotInitialized is returned by Bind, Connect, PublishFrames,
// PublishVerbatim, Subscribe, SubscribeLatest, and ClearPublisherQueue
// when they are called before Init. This relaxes the source's
// CHECK/abort contract into an error a caller can check, per DESIGN.md's
// Open Question decision on the "global singleton" question. Cleanup does
// not reset the initialized state: those calls made after Cleanup return
// nil, and the request they would queue is dropped with a logged warning
// because the request rings are stopped.
var ErrNotInitialized = errors.New("bus: not initialized")

// Recorder receives a clone of every published or delivered message when
// recording is enabled. recorder.Recorder implements this.
type Recorder interface {
	Append(msg wire.Message) error
}

// PublisherRequest is the publisher worker's unit of work, mirroring
// pubsub.cpp's PublisherRequest. If BindAddress is non-empty, Topic must
// be empty: the request either binds the socket or publishes a message,
// never both.
type PublisherRequest struct {
	Topic          string
	MessageVersion uint16
	Flags          uint16
	Frames         [][]byte
	BindAddress    string

	// Verbatim, when non-nil, ships this header as-is instead of
	// stamping a fresh one — the playback re-publish variant spec.md
	// §4.7 requires ("the bus must expose a variant that ships a
	// caller-provided header verbatim").
	Verbatim *wire.Header
}

// SubscriberRequest is the subscriber worker's unit of work, mirroring
// pubsub.cpp's SubscriberRequest. SubscribeTopic is a pointer because the
// empty string is itself a valid (match-everything) subscription.
type SubscriberRequest struct {
	SubscribeTopic *string
	ConnectAddress string
	Buffer         *ring.Buffer[wire.Message]
	Item           *slot.Item[wire.Message]
}

type subscription struct {
	prefix string
	buffer *ring.Buffer[wire.Message]
	item   *slot.Item[wire.Message]
}

// Bus is a pub/sub endpoint: one bound publisher socket, one subscriber
// socket that may connect to many peers, and an optional recording tap.
type Bus struct {
	wrk    worker.Worker
	clock  *pclock.Clock
	logger *logging.Logger

	publisherRequests  *ring.Buffer[PublisherRequest]
	subscriberRequests *ring.Buffer[SubscriberRequest]
	recorderBuffer     *ring.Buffer[wire.Message]

	pubEndpoint *transport.Endpoint
	subEndpoint *transport.Endpoint

	sequenceID atomic.Uint64

	recMu     sync.Mutex
	recording Recorder

	initialized atomic.Bool
	stopped     atomic.Bool
}

// New constructs an uninitialized Bus. Call Init before use.
func New(clock *pclock.Clock, logger *logging.Logger) *Bus {
	return &Bus{clock: clock, logger: logger}
}

// Init starts the publisher, subscriber, and recorder workers and binds
// + connects the default in-process endpoint, matching spec.md §6: "The
// default in-process endpoint is inproc://pubsub (bound and connected
// automatically at init)." Calling Init a second time, including after
// Cleanup, is a contract violation and panics.
func (b *Bus) Init() error {
	if !b.initialized.CompareAndSwap(false, true) {
		panic("bus: Init called twice")
	}

	b.publisherRequests = ring.New[PublisherRequest](publisherRequestCapacity)
	b.subscriberRequests = ring.New[SubscriberRequest](subscriberRequestCapacity)
	b.recorderBuffer = ring.New[wire.Message](recorderBufferCapacity)
	b.pubEndpoint = transport.New()
	b.subEndpoint = transport.New()

	b.wrk.Go(b.runPublisher)
	b.wrk.Go(b.runSubscriber)
	b.wrk.Go(b.runRecorder)

	if err := b.Bind(DefaultEndpoint); err != nil {
		return err
	}
	if err := b.Connect(DefaultEndpoint); err != nil {
		return err
	}
	return nil
}

// Bind requests that the publisher socket bind to address. Non-blocking:
// drops with a log warning if the publisher request ring is full.
func (b *Bus) Bind(address string) error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	if !b.publisherRequests.Write(PublisherRequest{BindAddress: address}) {
		b.logger.Warningf("bus: publisher request ring full, dropping bind %q", address)
	}
	return nil
}

// Connect requests that the subscriber socket connect to address.
func (b *Bus) Connect(address string) error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	if !b.subscriberRequests.Write(SubscriberRequest{ConnectAddress: address}) {
		b.logger.Warningf("bus: subscriber request ring full, dropping connect %q", address)
	}
	return nil
}

// PublishFrames publishes topic with frames as the application payload,
// stamping a fresh header. It fails with ErrNotInitialized before Init;
// otherwise it drops-with-log on a full publisher ring, matching
// spec.md §4.3's "publish_frames ... drops-with-log if publisher ring is
// full."
func (b *Bus) PublishFrames(topic string, messageVersion uint16, frames [][]byte, flags uint16) error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	req := PublisherRequest{Topic: topic, MessageVersion: messageVersion, Frames: frames, Flags: flags}
	if !b.publisherRequests.Write(req) {
		b.logger.Warningf("bus: publisher ring full, dropping publish on topic %q", topic)
	}
	return nil
}

// PublishVerbatim publishes msg with its header shipped exactly as given,
// bypassing sequence-stamping. This is the variant playback.Player uses
// to re-inject historical messages, per spec.md §4.7.
func (b *Bus) PublishVerbatim(msg wire.Message) error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	header := msg.Header
	req := PublisherRequest{
		Topic:          msg.Topic,
		MessageVersion: msg.Header.MessageVersion,
		Frames:         msg.Frames,
		Flags:          msg.Header.Flags,
		Verbatim:       &header,
	}
	if !b.publisherRequests.Write(req) {
		b.logger.Warningf("bus: publisher ring full, dropping verbatim publish on topic %q", msg.Topic)
	}
	return nil
}

// Subscribe registers prefix for buffered delivery: every message whose
// topic has prefix as a prefix is pushed onto buf.
func (b *Bus) Subscribe(prefix string, buf *ring.Buffer[wire.Message]) error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	topic := prefix
	req := SubscriberRequest{SubscribeTopic: &topic, Buffer: buf}
	if !b.subscriberRequests.Write(req) {
		b.logger.Warningf("bus: subscriber request ring full, dropping subscribe %q", prefix)
	}
	return nil
}

// SubscribeLatest registers prefix for latest-value delivery into item.
func (b *Bus) SubscribeLatest(prefix string, item *slot.Item[wire.Message]) error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	topic := prefix
	req := SubscriberRequest{SubscribeTopic: &topic, Item: item}
	if !b.subscriberRequests.Write(req) {
		b.logger.Warningf("bus: subscriber request ring full, dropping subscribe_latest %q", prefix)
	}
	return nil
}

// ClearPublisherQueue drops every pending, not-yet-sent publish request.
// playback.Player calls this before a backward seek or a large forward
// jump, per spec.md §4.7's "first clears the publisher request queue."
func (b *Bus) ClearPublisherQueue() error {
	if !b.initialized.Load() {
		return ErrNotInitialized
	}
	b.publisherRequests.Clear()
	return nil
}

// EnableRecording attaches rec: from now on every published and every
// delivered message is also cloned into the recorder ring.
func (b *Bus) EnableRecording(rec Recorder) {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	b.recording = rec
}

// DisableRecording detaches the current recorder, if any.
func (b *Bus) DisableRecording() {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	b.recording = nil
}

func (b *Bus) recorderTap(msg wire.Message) {
	b.recMu.Lock()
	recording := b.recording != nil
	b.recMu.Unlock()
	if !recording {
		return
	}
	if !b.recorderBuffer.Write(msg) {
		b.logger.Warning("bus: recorder buffer is full")
	}
}

// Cleanup halts all three workers and closes both transport endpoints.
// It is safe to call more than once.
func (b *Bus) Cleanup() error {
	if !b.stopped.CompareAndSwap(false, true) {
		return nil
	}
	b.publisherRequests.Stop()
	b.subscriberRequests.Stop()
	b.recorderBuffer.Stop()
	firstErr := b.wrk.Halt()

	if b.pubEndpoint != nil {
		if err := b.pubEndpoint.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.subEndpoint != nil {
		if err := b.subEndpoint.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
