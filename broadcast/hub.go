// Package broadcast implements the single-topic publish/subscribe channel that
// fans each committed snapshot out to every connected viewer.
//
// Architecture:
//   - Hub keeps an explicit, ordered registry of subscribers
//   - Publish encodes the envelope once and delivers synchronously, in
//     subscription order, to the subscribers registered at call time
//   - No replay: a subscriber added after a publish never sees it
//   - Subscribers must not block in Deliver; network subscribers queue and
//     drop on overflow (there is no flow control)
package broadcast

import (
	"fmt"
	"log"
	"sync"

	"enginewatch/metrics"
	"enginewatch/sensor"

	jsoniter "github.com/json-iterator/go"
)

// TopicSensorsUpdate is the only event name carried on the channel.
const TopicSensorsUpdate = "sensors:update"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is one delivery. Snapshot is shared between all subscribers and
// must be treated as read-only; Payload is the encoded envelope.
type Message struct {
	Topic    string
	Snapshot sensor.Snapshot
	Payload  []byte
}

// Envelope is the JSON frame written to network subscribers.
type Envelope struct {
	Event string          `json:"event"`
	Data  sensor.Snapshot `json:"data"`
}

// Subscriber receives published messages. Deliver runs on the publisher's
// goroutine and must return promptly.
type Subscriber interface {
	Deliver(msg Message)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Message)

// Deliver calls f(msg).
func (f SubscriberFunc) Deliver(msg Message) { f(msg) }

// Handle identifies a registration for Unsubscribe.
type Handle uint64

type registration struct {
	handle Handle
	name   string
	sub    Subscriber
}

// Hub is the subscriber registry. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	subs    []registration
	next    Handle
	metrics *metrics.Metrics
}

// NewHub returns an empty hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{metrics: m}
}

// Subscribe registers sub under a descriptive name and returns its handle.
func (h *Hub) Subscribe(name string, sub Subscriber) Handle {
	h.mu.Lock()
	h.next++
	handle := h.next
	h.subs = append(h.subs, registration{handle: handle, name: name, sub: sub})
	total := len(h.subs)
	h.mu.Unlock()

	h.metrics.SetSubscribers(total)
	log.Printf("Hub: subscribed %s (total: %d)", name, total)
	return handle
}

// Unsubscribe removes a registration. It reports false when the handle is
// unknown (already removed).
func (h *Hub) Unsubscribe(handle Handle) bool {
	h.mu.Lock()
	idx := -1
	for i, reg := range h.subs {
		if reg.handle == handle {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.mu.Unlock()
		return false
	}
	name := h.subs[idx].name
	h.subs = append(h.subs[:idx:idx], h.subs[idx+1:]...)
	total := len(h.subs)
	h.mu.Unlock()

	h.metrics.SetSubscribers(total)
	log.Printf("Hub: unsubscribed %s (total: %d)", name, total)
	return true
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers snap on topic to every subscriber registered at call time
// and returns how many received it. With no subscribers it does nothing.
func (h *Hub) Publish(topic string, snap sensor.Snapshot) (int, error) {
	h.mu.RLock()
	if len(h.subs) == 0 {
		h.mu.RUnlock()
		return 0, nil
	}
	targets := make([]registration, len(h.subs))
	copy(targets, h.subs)
	h.mu.RUnlock()

	if snap == nil {
		snap = sensor.Snapshot{}
	}
	payload, err := EncodeEnvelope(topic, snap)
	if err != nil {
		return 0, fmt.Errorf("encode %s envelope: %w", topic, err)
	}
	msg := Message{Topic: topic, Snapshot: snap, Payload: payload}
	for _, reg := range targets {
		reg.sub.Deliver(msg)
	}
	h.metrics.ObservePublish()
	return len(targets), nil
}

// EncodeEnvelope builds the wire frame for a snapshot.
func EncodeEnvelope(topic string, snap sensor.Snapshot) ([]byte, error) {
	if snap == nil {
		snap = sensor.Snapshot{}
	}
	return json.Marshal(Envelope{Event: topic, Data: snap})
}

// DecodeEnvelope parses a wire frame. Data is decoded leniently with the same
// rules as ingestion.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var raw struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if raw.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event")
	}
	if _, ok := raw.Data.([]any); !ok {
		return Envelope{}, fmt.Errorf("decode envelope: data is not an array")
	}
	return Envelope{Event: raw.Event, Data: sensor.DecodeReadings(raw.Data)}, nil
}
