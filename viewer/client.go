package viewer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"enginewatch/broadcast"
	"enginewatch/internal/backoff"
	"enginewatch/sensor"

	"github.com/gorilla/websocket"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// OnStatus receives the connection side channel.
	OnStatus func(connected bool)
	// OnSnapshot receives each sensors:update snapshot in arrival order on
	// the client goroutine.
	OnSnapshot func(sensor.Snapshot)
	Dialer     *websocket.Dialer
	Header     http.Header
}

// Client subscribes to the broadcast channel and reconnects with backoff.
type Client struct {
	opts    ClientOptions
	skipped uint64
}

// NewClient validates opts.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("viewer: URL is empty")
	}
	if opts.OnSnapshot == nil {
		return nil, errors.New("viewer: snapshot handler is required")
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 15 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts}, nil
}

// Skipped returns how many frames were dropped as undecodable.
func (c *Client) Skipped() uint64 { return c.skipped }

// Purpose: Keep a subscription alive until ctx is cancelled.
// Key aspects: Reports connected/disconnected transitions; backoff resets
// after each successful dial.
// Upstream: cmd/viewer main.
// Downstream: session, backoff.Backoff.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.New(c.opts.ReconnectMin, c.opts.ReconnectMax)
	for {
		err := c.session(ctx, bo)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := bo.Next()
		log.Printf("Viewer: connection to %s lost: %v (retry in %s)", c.opts.URL, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) session(ctx context.Context, bo *backoff.Backoff) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	bo.Reset()
	c.status(true)
	defer c.status(false)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	env, err := broadcast.DecodeEnvelope(data)
	if err != nil {
		c.skipped++
		log.Printf("Viewer: skipping frame: %v", err)
		return
	}
	if env.Event != broadcast.TopicSensorsUpdate {
		return
	}
	c.opts.OnSnapshot(env.Data)
}

func (c *Client) status(connected bool) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(connected)
	}
}
