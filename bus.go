package main

import (
	"log"
	"sync"
)

// TopicSystem carries one event per completed state replacement anywhere in
// the system; per-spot topics carry that spot's replacements only.
const TopicSystem = "system"

func SpotTopic(spotID string) string {
	return "spot:" + spotID
}

// What kind of state replacement an event announces.
const (
	EventCheck       = "check"
	EventCheckFailed = "check_failed"
	EventReset       = "reset"
	EventSnooze      = "snooze"
	EventUnsnooze    = "unsnooze"
)

// Event is what subscribers receive. State is a copy; handlers may keep it.
type Event struct {
	Topic    string
	Kind     string
	SpotID   string
	SpotName string
	State    SpotCheckState
}

// Bus is the in-process publish/subscribe fan-out for state changes.
// Handlers run sequentially on the publisher's goroutine, so they must be
// fast and non-blocking. Delivery is at-least-once per change; there is no
// replay for late subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: map[string]map[string]func(Event){}}
}

// Subscribe registers fn under subscriberID. Re-subscribing the same id on
// the same topic replaces the previous handler.
func (b *Bus) Subscribe(topic, subscriberID string, fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[string]func(Event){}
	}
	b.subs[topic][subscriberID] = fn
}

// Unsubscribe removes a handler. Unknown ids are a no-op.
func (b *Bus) Unsubscribe(topic, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[topic], subscriberID)
}

// Publish delivers ev to every handler on its topic. A panicking handler is
// contained so one bad subscriber cannot take a check down with it.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs[ev.Topic]))
	for _, fn := range b.subs[ev.Topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("bus handler panic topic=%s: %v", ev.Topic, r)
				}
			}()
			fn(ev)
		}()
	}
}

// SubscriberCount is a test and debugging aid.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
