package telnet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"enginewatch/broadcast"
	"enginewatch/sensor"
	"enginewatch/viewer"

	"github.com/dustin/go-humanize"
)

type session struct {
	server   *Server
	conn     net.Conn
	address  string
	reader   *lineReader
	writeMu  sync.Mutex
	writer   *bufio.Writer
	queue    chan sensor.Snapshot
	done     chan struct{}
	stopOnce sync.Once
	handle   broadcast.Handle

	// renderer is touched only by the sender goroutine.
	renderer  *viewer.Renderer
	connected time.Time
	lastFrame time.Time
	frameMu   sync.Mutex
}

// Deliver queues a snapshot for this session; a full queue drops it.
func (c *session) Deliver(msg broadcast.Message) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.queue <- msg.Snapshot:
	default:
		c.server.opts.Metrics.ObserveDrop("telnet")
		if total, ok := c.server.drops.Inc(); ok {
			log.Printf("Telnet: queue full for %s, dropping update (total telnet drops=%d)", c.address, total)
		}
	}
}

func (c *session) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// sender renders queued snapshots in arrival order.
func (c *session) sender() {
	for {
		select {
		case <-c.done:
			return
		case snap := <-c.queue:
			frame, err := c.renderer.Apply(snap)
			if err != nil {
				log.Printf("Telnet: %s skipped update: %v", c.address, err)
				continue
			}
			c.frameMu.Lock()
			c.lastFrame = frame.At
			c.frameMu.Unlock()
			lines := viewer.FormatFrame(frame, c.server.opts.Locale, c.server.opts.SparkWidth)
			if err := c.Send(strings.Join(lines, "\n") + "\n\n"); err != nil {
				log.Printf("Telnet: %s disconnecting: write failure: %v", c.address, err)
				// Closing the connection forces commandLoop to exit.
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *session) commandLoop() {
	c.connected = time.Now()
	for {
		line, err := c.reader.ReadLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				_ = c.Send("Input too long.\n")
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("Telnet: %s read error: %v", c.address, err)
			}
			return
		}
		reply, quit := c.command(line)
		if reply != "" {
			if err := c.Send(reply); err != nil {
				return
			}
		}
		if quit {
			return
		}
	}
}

func (c *session) command(line string) (reply string, quit bool) {
	switch line {
	case "":
		return "", false
	case "BYE", "QUIT", "EXIT":
		return "73\n", true
	case "HELP", "?":
		return "Commands: HELP, STATUS, BYE\n", false
	case "STATUS":
		c.frameMu.Lock()
		last := c.lastFrame
		c.frameMu.Unlock()
		updated := "never"
		if !last.IsZero() {
			updated = humanize.Time(last)
		}
		return fmt.Sprintf("Connected %s, last update %s, %d sessions\n",
			humanize.Time(c.connected), updated, c.server.GetClientCount()), false
	default:
		return fmt.Sprintf("Unknown command %q. Type HELP.\n", line), false
	}
}

// Send writes message with CRLF line endings under a write deadline so a
// wedged client cannot stall its sender.
func (c *session) Send(message string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultSendDeadline)); err != nil {
		return err
	}
	defer c.conn.SetWriteDeadline(time.Time{})
	if _, err := c.writer.WriteString(toCRLF(message)); err != nil {
		return err
	}
	return c.writer.Flush()
}
