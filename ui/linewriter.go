package ui

import (
	"bytes"
	"log"
	"sync"
	"time"
)

const lineWriterMaxBytes = 64 * 1024

// lineWriter splits written bytes into lines and hands each to emit. It is
// the io.Writer behind SystemWriter so log output lands in a pane.
type lineWriter struct {
	emit func(string)
	// buf holds any partial line; it is bounded when no newline arrives.
	buf          []byte
	mu           sync.Mutex
	droppedBytes uint64
	lastDropLog  time.Time
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	if w == nil || w.emit == nil {
		return len(p), nil
	}
	var lines []string
	var logDrop bool
	var dropBytes, totalDropped uint64
	now := time.Now().UTC()

	w.mu.Lock()
	w.buf = append(w.buf, p...)
	if excess := len(w.buf) - lineWriterMaxBytes; excess > 0 {
		w.buf = w.buf[excess:]
		w.droppedBytes += uint64(excess)
		dropBytes = uint64(excess)
		totalDropped = w.droppedBytes
		if w.lastDropLog.IsZero() || now.Sub(w.lastDropLog) >= 30*time.Second {
			w.lastDropLog = now
			logDrop = true
		}
	}
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(w.buf[:idx], "\r")))
		w.buf = w.buf[idx+1:]
	}
	w.mu.Unlock()

	// Emitting outside the lock; emit may log, which may write back here.
	for _, line := range lines {
		w.emit(line)
	}
	if logDrop {
		log.Printf("UI: line writer dropped %d bytes (total %d) due to missing newline", dropBytes, totalDropped)
	}
	return len(p), nil
}
