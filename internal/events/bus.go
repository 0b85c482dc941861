package events

import (
	"sync"
	"sync/atomic"
)

// Topic names a class of change notifications.
type Topic string

// TopicFilesChanged fires whenever the shared file-record state mutates:
// uploads, renames, star toggles, trash moves, restores, permanent deletes.
const TopicFilesChanged Topic = "files.changed"

// Event carries the topic and the topic's version at publish time.
type Event struct {
	Topic   Topic
	Version uint64
}

// Bus is an in-process observer registry. Publishing bumps a per-topic
// version counter and notifies every subscriber without blocking: a
// subscriber that has not drained its channel misses intermediate events but
// can always catch up through the version counter.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]chan Event
	versions    map[Topic]*atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Topic][]chan Event),
		versions:    make(map[Topic]*atomic.Uint64),
	}
}

func (b *Bus) version(topic Topic) *atomic.Uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.versions[topic]
	if !ok {
		v = &atomic.Uint64{}
		b.versions[topic] = v
	}
	return v
}

// Publish bumps the topic version and fans the event out.
func (b *Bus) Publish(topic Topic) {
	version := b.version(topic).Add(1)

	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()

	event := Event{Topic: topic, Version: version}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a buffered listener channel. The returned cancel
// function removes it.
func (b *Bus) Subscribe(topic Topic) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[topic]
		for i, sub := range subs {
			if sub == ch {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, cancel
}

// Version returns the topic's current version; pollers compare it against
// the last value they saw to detect changes.
func (b *Bus) Version(topic Topic) uint64 {
	return b.version(topic).Load()
}
