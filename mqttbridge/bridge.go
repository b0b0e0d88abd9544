// Package mqttbridge mirrors every broadcast snapshot onto an MQTT topic so
// non-WebSocket consumers can follow the same updates.
package mqttbridge

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"enginewatch/broadcast"
	"enginewatch/internal/ratelimit"
	"enginewatch/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	queueDepth     = 256
	publishTimeout = 5 * time.Second
)

// publisher is the slice of mqtt.Client the bridge needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Options configures a Bridge.
//
// Key aspects:
//   - Broker/Port: broker address, dialed as tcp://broker:port
//   - Topic: every envelope is published here, not retained
//   - QoS: 0, 1 or 2
type Options struct {
	Broker   string
	Port     int
	Topic    string
	ClientID string
	QoS      byte
	Metrics  *metrics.Metrics
}

// Bridge is a broadcast subscriber that republishes envelopes to MQTT.
type Bridge struct {
	opts   Options
	client publisher

	queue    chan []byte
	shutdown chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	drops    *ratelimit.Counter

	mu        sync.Mutex
	published uint64
	failed    uint64
}

// Connect dials the broker and starts the publish loop.
func Connect(opts Options) (*Bridge, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqttbridge: broker is empty")
	}
	if opts.Topic == "" {
		return nil, errors.New("mqttbridge: topic is empty")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("mqttbridge: invalid qos %d", opts.QoS)
	}
	b := newBridge(opts, nil)

	clientOpts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port)
	clientOpts.AddBroker(brokerURL)
	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("enginewatch-%d", time.Now().Unix())
	}
	clientOpts.SetClientID(clientID)
	clientOpts.SetKeepAlive(60 * time.Second)
	clientOpts.SetPingTimeout(10 * time.Second)
	clientOpts.SetConnectTimeout(10 * time.Second)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetMaxReconnectInterval(1 * time.Minute)
	clientOpts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected to %s, mirroring to %s", brokerURL, opts.Topic)
	})
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v (will reconnect)", err)
	})

	client := mqtt.NewClient(clientOpts)
	log.Printf("Connecting to MQTT broker at %s...", brokerURL)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttbridge: connect %s: %w", brokerURL, token.Error())
	}
	b.client = client
	b.start()
	return b, nil
}

func newBridge(opts Options, client publisher) *Bridge {
	return &Bridge{
		opts:     opts,
		client:   client,
		queue:    make(chan []byte, queueDepth),
		shutdown: make(chan struct{}),
		drops:    ratelimit.NewCounter(time.Minute),
	}
}

func (b *Bridge) start() {
	b.wg.Add(1)
	go b.loop()
}

// Deliver queues the envelope payload; a full queue drops it.
func (b *Bridge) Deliver(msg broadcast.Message) {
	if b == nil {
		return
	}
	select {
	case <-b.shutdown:
		return
	default:
	}
	select {
	case b.queue <- msg.Payload:
	default:
		b.opts.Metrics.ObserveDrop("mqtt")
		if total, ok := b.drops.Inc(); ok {
			log.Printf("MQTT: publish queue full, dropping update (total mqtt drops=%d)", total)
		}
	}
}

func (b *Bridge) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.shutdown:
			return
		case payload := <-b.queue:
			b.publish(payload)
		}
	}
}

func (b *Bridge) publish(payload []byte) {
	token := b.client.Publish(b.opts.Topic, b.opts.QoS, false, payload)
	ok := token.WaitTimeout(publishTimeout)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !ok || token.Error() != nil {
		b.failed++
		err := token.Error()
		if err == nil {
			err = errors.New("timeout")
		}
		log.Printf("MQTT: publish to %s failed: %v", b.opts.Topic, err)
		return
	}
	b.published++
}

// Counts returns successful and failed publishes.
func (b *Bridge) Counts() (published, failed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published, b.failed
}

// Close stops the publish loop and disconnects.
func (b *Bridge) Close() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		close(b.shutdown)
		b.wg.Wait()
		if b.client != nil {
			b.client.Disconnect(250)
		}
		log.Println("MQTT: disconnected")
	})
}
