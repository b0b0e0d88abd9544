package mqttbridge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"enginewatch/broadcast"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	mu           sync.Mutex
	topics       []string
	payloads     []string
	qos          []byte
	retained     []bool
	err          error
	disconnected int
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, string(payload.([]byte)))
	f.qos = append(f.qos, qos)
	f.retained = append(f.retained, retained)
	return &fakeToken{err: f.err}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	f.disconnected++
	f.mu.Unlock()
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestBridgeRepublishesEnvelopes(t *testing.T) {
	client := &fakeClient{}
	b := newBridge(Options{Topic: "enginewatch/sensors/update", QoS: 1}, client)
	b.start()
	defer b.Close()

	b.Deliver(broadcast.Message{Payload: []byte(`{"event":"sensors:update","data":[]}`)})
	b.Deliver(broadcast.Message{Payload: []byte(`{"event":"sensors:update","data":[{"id":"rpm"}]}`)})
	waitFor(t, func() bool { return client.count() == 2 })

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.topics[0] != "enginewatch/sensors/update" || client.qos[0] != 1 || client.retained[0] {
		t.Fatalf("unexpected publish parameters: %v %v %v", client.topics, client.qos, client.retained)
	}
	if client.payloads[1] != `{"event":"sensors:update","data":[{"id":"rpm"}]}` {
		t.Fatalf("payloads out of order: %v", client.payloads)
	}
}

func TestBridgeCountsFailures(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	b := newBridge(Options{Topic: "t"}, client)
	b.start()
	defer b.Close()

	b.Deliver(broadcast.Message{Payload: []byte("x")})
	waitFor(t, func() bool {
		_, failed := b.Counts()
		return failed == 1
	})
	if published, _ := b.Counts(); published != 0 {
		t.Fatalf("expected no successful publishes, got %d", published)
	}
}

func TestBridgeDropsWhenQueueFull(t *testing.T) {
	b := newBridge(Options{Topic: "t"}, &fakeClient{})
	for i := 0; i < queueDepth+10; i++ {
		b.Deliver(broadcast.Message{Payload: []byte("x")})
	}
	if len(b.queue) != queueDepth {
		t.Fatalf("expected queue to cap at %d, got %d", queueDepth, len(b.queue))
	}
}

func TestBridgeCloseIsIdempotent(t *testing.T) {
	client := &fakeClient{}
	b := newBridge(Options{Topic: "t"}, client)
	b.start()
	b.Close()
	b.Close()
	b.Deliver(broadcast.Message{Payload: []byte("late")})
	if client.disconnected != 1 {
		t.Fatalf("expected one disconnect, got %d", client.disconnected)
	}
	var nilBridge *Bridge
	nilBridge.Deliver(broadcast.Message{})
	nilBridge.Close()
}

func TestConnectValidates(t *testing.T) {
	if _, err := Connect(Options{Topic: "t"}); err == nil {
		t.Fatalf("expected error without broker")
	}
	if _, err := Connect(Options{Broker: "localhost"}); err == nil {
		t.Fatalf("expected error without topic")
	}
	if _, err := Connect(Options{Broker: "localhost", Topic: "t", QoS: 3}); err == nil {
		t.Fatalf("expected error for qos 3")
	}
}
