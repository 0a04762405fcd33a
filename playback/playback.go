// Package playback implements the replay tool: it opens a recorded log
// read-only, walks a wall-clock-driven cursor across the recorded time
// range, and re-publishes each row through bus.Bus.PublishVerbatim in
// ascending recorded-time order.
//
// Grounded on spec.md §4.7 (no original_source/ counterpart exists —
// the source repo never implemented playback, only the recorder's
// write path in app/pubsub_recorder.cpp/h, which this package reuses
// for schema knowledge via recorder.Reader) plus
// original_source/app/process_id.h's force_process_id, reused here via
// pclock.Clock.ForceProcessID so re-published headers carry the
// recorded process's identity rather than this process's own.
package playback

import (
	"sync"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/axbycc/corebus/bus"
	"github.com/axbycc/corebus/core/worker"
	"github.com/axbycc/corebus/pclock"
	"github.com/axbycc/corebus/recorder"
	"github.com/axbycc/corebus/wire"
)

// tickInterval is how often the playback worker samples the wall clock
// and advances the cursor. Short enough that a paused-then-resumed UI
// jump feels immediate, long enough not to busy-loop bbolt cursors.
const tickInterval = 20 * time.Millisecond

// largeJumpThresholdUs gates "large forward jump" per spec.md §4.7: a
// forward advance wider than this triggers keyframe recovery instead of
// a plain (prev, new] range publish, on the theory that a jump this
// large means the UI seeked rather than simply let time run.
const largeJumpThresholdUs = 2 * time.Second

// keyframeWindowUs bounds how far back FindKeyframeAtOrBefore searches
// for a reference frame before giving up.
const keyframeWindowUs = 5 * time.Second

// Player replays a recorded log file through a Bus at a user-controlled
// rate and cursor position.
type Player struct {
	wrk    worker.Worker
	bus    *bus.Bus
	reader *recorder.Reader
	logger *logging.Logger

	minUs, maxUs uint64

	mu          sync.Mutex
	cursorUs    uint64
	speed       float64
	playing     bool
	seekPending bool

	kfMu           sync.Mutex
	keyframeTopics map[string]bool
}

// Open opens path read-only and scans it once to discover the recorded
// time bounds (spec.md §4.7: "discovers time bounds with
// min/max(this_process_time_us)").
func Open(path string, b *bus.Bus, clock *pclock.Clock, logger *logging.Logger) (*Player, error) {
	reader, err := recorder.OpenReader(path)
	if err != nil {
		return nil, err
	}

	minUs, maxUs := uint64(0), uint64(0)
	first := true
	if err := reader.ForEachInRange(0, ^uint64(0), func(row recorder.Row) error {
		if first {
			minUs = row.ThisProcessTimeUs
			first = false
		}
		if row.ThisProcessTimeUs > maxUs {
			maxUs = row.ThisProcessTimeUs
		}
		return nil
	}); err != nil {
		reader.Close()
		return nil, err
	}

	p := &Player{
		bus:            b,
		reader:         reader,
		logger:         logger,
		minUs:          minUs,
		maxUs:          maxUs,
		cursorUs:       minUs,
		speed:          1.0,
		keyframeTopics: make(map[string]bool),
	}

	meta, err := reader.ReadMetadata()
	if err == nil {
		clock.ForceProcessID(meta.ThisProcessID)
	}

	return p, nil
}

// Bounds returns the recorded log's [min, max] this_process_time_us
// range.
func (p *Player) Bounds() (minUs, maxUs uint64) {
	return p.minUs, p.maxUs
}

// RegisterKeyframeTopic adds topic to the set consulted during backward
// seek / large forward jump recovery. Runtime-registered rather than
// hard-coded, per spec.md §9's redesign note on the original's
// hard-coded topic set.
func (p *Player) RegisterKeyframeTopic(topic string) {
	p.kfMu.Lock()
	defer p.kfMu.Unlock()
	p.keyframeTopics[topic] = true
}

// UnregisterKeyframeTopic removes topic from the keyframe-recovery set.
func (p *Player) UnregisterKeyframeTopic(topic string) {
	p.kfMu.Lock()
	defer p.kfMu.Unlock()
	delete(p.keyframeTopics, topic)
}

func (p *Player) keyframeTopicList() []string {
	p.kfMu.Lock()
	defer p.kfMu.Unlock()
	topics := make([]string, 0, len(p.keyframeTopics))
	for t := range p.keyframeTopics {
		topics = append(topics, t)
	}
	return topics
}

// SetSpeed sets the playback rate multiplier (1.0 is real-time).
func (p *Player) SetSpeed(speed float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = speed
}

// Seek moves the cursor to atUs, the UI's requested
// this_process_time_us position. The next tick detects whether this is
// a backward seek or a large forward jump and runs keyframe recovery
// accordingly, per spec.md §4.7.
func (p *Player) Seek(atUs uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursorUs = atUs
	p.seekPending = true
}

// Play starts the playback worker. Calling Play while already playing
// is a no-op.
func (p *Player) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = true
	p.mu.Unlock()

	p.wrk.Go(p.run)
}

// Pause stops advancing the cursor; the player retains its position and
// Play resumes from there.
func (p *Player) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// Close halts the playback worker and releases the underlying store.
func (p *Player) Close() error {
	err := p.wrk.Halt()
	if closeErr := p.reader.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (p *Player) run() error {
	lastTick := time.Now()
	for {
		select {
		case <-p.wrk.HaltCh():
			return nil
		case <-time.After(tickInterval):
		}

		now := time.Now()
		elapsed := now.Sub(lastTick)
		lastTick = now

		p.mu.Lock()
		playing := p.playing
		speed := p.speed
		seek := p.seekPending
		p.seekPending = false
		prevUs := p.cursorUs
		p.mu.Unlock()

		if seek {
			if err := p.recoverAndReplay(prevUs); err != nil {
				p.logf("seek recovery failed: %v", err)
			}
			continue
		}

		if !playing {
			continue
		}

		advanceUs := uint64(elapsed.Seconds() * speed * 1e6)
		if advanceUs == 0 {
			continue
		}
		newUs := prevUs + advanceUs
		if newUs > p.maxUs {
			newUs = p.maxUs
		}
		if newUs <= prevUs {
			continue
		}

		if newUs-prevUs > uint64(largeJumpThresholdUs.Microseconds()) {
			p.mu.Lock()
			p.cursorUs = newUs
			p.mu.Unlock()
			if err := p.recoverAndReplay(newUs); err != nil {
				p.logf("large-jump recovery failed: %v", err)
			}
			continue
		}

		if err := p.publishRange(prevUs, newUs); err != nil {
			p.logf("publish range failed: %v", err)
			continue
		}
		p.mu.Lock()
		p.cursorUs = newUs
		p.mu.Unlock()
	}
}

// publishRange re-publishes every row in (fromUsExclusive,
// toUsInclusive], in ascending recorded-time order.
func (p *Player) publishRange(fromUsExclusive, toUsInclusive uint64) error {
	return p.reader.ForEachInRange(fromUsExclusive, toUsInclusive, func(row recorder.Row) error {
		return p.bus.PublishVerbatim(wire.Message{
			Topic:  row.Topic,
			Header: row.Header(),
			Frames: row.Frames,
		})
	})
}

// recoverAndReplay implements spec.md §4.7's backward-seek / large-
// forward-jump path: clear anything still queued for send, then for
// every registered keyframe topic find the nearest keyframe at or
// before atUs and replay forward from it to atUs.
func (p *Player) recoverAndReplay(atUs uint64) error {
	if err := p.bus.ClearPublisherQueue(); err != nil {
		return err
	}

	windowUs := uint64(keyframeWindowUs.Microseconds())
	for _, topic := range p.keyframeTopicList() {
		key, _, found, err := p.reader.FindKeyframeAtOrBefore(topic, atUs, windowUs)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := p.reader.ForEachFromKey(key, atUs, func(row recorder.Row) error {
			if row.Topic != topic {
				return nil
			}
			return p.bus.PublishVerbatim(wire.Message{
				Topic:  row.Topic,
				Header: row.Header(),
				Frames: row.Frames,
			})
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Player) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Warningf("playback: "+format, args...)
}
