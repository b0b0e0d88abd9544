package broadcast

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"enginewatch/metrics"
	"enginewatch/sensor"

	"github.com/gorilla/websocket"
)

type recordingSubscriber struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recordingSubscriber) Deliver(msg Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(nil)
	n, err := hub.Publish(TopicSensorsUpdate, sensor.Snapshot{{ID: "rpm"}})
	if err != nil || n != 0 {
		t.Fatalf("expected no-op publish, got n=%d err=%v", n, err)
	}
}

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	hub := NewHub(metrics.New())
	var order []string
	var mu sync.Mutex
	mk := func(name string) Subscriber {
		return SubscriberFunc(func(Message) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		})
	}
	hub.Subscribe("a", mk("a"))
	hub.Subscribe("b", mk("b"))
	hub.Subscribe("c", mk("c"))

	n, err := hub.Publish(TopicSensorsUpdate, sensor.Snapshot{{ID: "rpm", Value: sensor.Number(900)}})
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deliveries, got n=%d err=%v", n, err)
	}
	if strings.Join(order, ",") != "a,b,c" {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}

func TestLateSubscriberMissesEarlierPublish(t *testing.T) {
	hub := NewHub(nil)
	first := &recordingSubscriber{}
	hub.Subscribe("first", first)
	if _, err := hub.Publish(TopicSensorsUpdate, sensor.Snapshot{{ID: "rpm"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	late := &recordingSubscriber{}
	hub.Subscribe("late", late)
	if late.count() != 0 {
		t.Fatalf("expected no replay for late subscriber")
	}
	if _, err := hub.Publish(TopicSensorsUpdate, sensor.Snapshot{{ID: "oil_temp"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if first.count() != 2 || late.count() != 1 {
		t.Fatalf("expected first=2 late=1, got %d/%d", first.count(), late.count())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	sub := &recordingSubscriber{}
	h := hub.Subscribe("viewer", sub)
	if !hub.Unsubscribe(h) {
		t.Fatalf("expected unsubscribe to succeed")
	}
	if hub.Unsubscribe(h) {
		t.Fatalf("expected second unsubscribe to report false")
	}
	if hub.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", hub.Count())
	}
	if n, _ := hub.Publish(TopicSensorsUpdate, sensor.Snapshot{}); n != 0 || sub.count() != 0 {
		t.Fatalf("expected no delivery after unsubscribe")
	}
}

func TestSubscriberMayUnsubscribeDuringDelivery(t *testing.T) {
	hub := NewHub(nil)
	var h Handle
	h = hub.Subscribe("once", SubscriberFunc(func(Message) {
		hub.Unsubscribe(h)
	}))
	if n, err := hub.Publish(TopicSensorsUpdate, sensor.Snapshot{}); err != nil || n != 1 {
		t.Fatalf("expected one delivery, got n=%d err=%v", n, err)
	}
	if hub.Count() != 0 {
		t.Fatalf("expected subscriber to be removed")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := EncodeEnvelope(TopicSensorsUpdate, sensor.Snapshot{
		{ID: "rpm", Value: sensor.Number(1500), Severity: sensor.SeverityWarning},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(payload), `{"event":"sensors:update","data":[`) {
		t.Fatalf("unexpected envelope: %s", payload)
	}
	env, err := DecodeEnvelope(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Event != TopicSensorsUpdate || len(env.Data) != 1 || env.Data[0].Severity != sensor.SeverityWarning {
		t.Fatalf("unexpected decoded envelope: %+v", env)
	}
	empty, _ := EncodeEnvelope(TopicSensorsUpdate, nil)
	if !strings.Contains(string(empty), `"data":[]`) {
		t.Fatalf("expected empty array for nil snapshot, got %s", empty)
	}
	for _, bad := range []string{`nope`, `{"data":[]}`, `{"event":"x","data":{}}`} {
		if _, err := DecodeEnvelope([]byte(bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestWSHandlerStreamsPublishes(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewWSHandler(hub, WSOptions{ClientBuffer: 4, PingInterval: time.Second}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := hub.Publish(TopicSensorsUpdate, sensor.Snapshot{{ID: "voltage", Value: sensor.Number(13.8)}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 1 || env.Data[0].ID != "voltage" {
		t.Fatalf("unexpected payload: %s", data)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSSubscriberDropsWhenQueueFull(t *testing.T) {
	drops := 0
	h := NewWSHandler(NewHub(nil), WSOptions{ClientBuffer: 1, OnDrop: func() { drops++ }})
	sub := &wsSubscriber{send: make(chan []byte, 1), done: make(chan struct{}), handler: h, remote: "test"}
	sub.Deliver(Message{Payload: []byte("a")})
	sub.Deliver(Message{Payload: []byte("b")})
	if drops != 1 {
		t.Fatalf("expected one drop, got %d", drops)
	}
	if got := string(<-sub.send); got != "a" {
		t.Fatalf("expected first payload kept, got %q", got)
	}
}
