// Package logging sends the standard logger to the console (stdout or the
// viewer's system pane) and, when enabled, to one file per UTC day named
// enginewatch-YYYY-MM-DD.log under logging.dir.
package logging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"enginewatch/config"
	"enginewatch/internal/ratelimit"
)

const (
	stampLayout          = "2006/01/02 15:04:05"
	dayLayout            = "2006-01-02"
	filePrefix           = "enginewatch-"
	fileSuffix           = ".log"
	defaultRetentionDays = 7
	// maxPending bounds a line that never sees its newline.
	maxPending = 16 * 1024
)

// Fanout is the io.Writer handed to log.SetOutput. It reassembles whole
// lines and stamps each one before passing it to the console and day file.
type Fanout struct {
	mu      sync.Mutex
	pending []byte
	console io.Writer
	file    *dayFile
	now     func() time.Time
}

// Purpose: Build the fanout for one binary from the logging config.
// Key aspects: Always returns a usable fanout; a file error only disables
// the file side.
// Upstream: main of the service and of cmd/viewer.
// Downstream: openDayFile.
func Setup(cfg config.LoggingConfig, console io.Writer) (*Fanout, error) {
	f := &Fanout{console: console, now: time.Now}
	if !cfg.Enabled {
		return f, nil
	}
	file, err := openDayFile(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return f, err
	}
	f.file = file
	return f, nil
}

func (f *Fanout) Write(p []byte) (int, error) {
	if f == nil {
		return len(p), nil
	}
	f.mu.Lock()
	f.pending = append(f.pending, p...)
	var lines []string
	rest := f.pending
	for {
		line, after, found := bytes.Cut(rest, []byte{'\n'})
		if !found {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(line, []byte{'\r'})))
		rest = after
	}
	if len(rest) > maxPending {
		lines = append(lines, string(rest))
		rest = nil
	}
	f.pending = append(f.pending[:0], rest...)
	now := f.now().UTC()
	f.mu.Unlock()

	stamp := now.Format(stampLayout)
	for _, line := range lines {
		if f.console != nil {
			_, _ = fmt.Fprintf(f.console, "%s %s\n", stamp, line)
		}
		f.file.write(now, stamp, line)
	}
	return len(p), nil
}

// Close closes the day file. The console writer belongs to the caller.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	return f.file.close()
}

// dayFile appends to the current day's file and switches files when the UTC
// date changes, pruning files older than the retention window on each switch.
type dayFile struct {
	dir      string
	keep     int
	failures *ratelimit.Counter

	mu  sync.Mutex
	day string
	out *os.File
}

func openDayFile(dir string, keep int) (*dayFile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("logging: dir is empty")
	}
	if keep <= 0 {
		keep = defaultRetentionDays
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create %s: %w", dir, err)
	}
	return &dayFile{dir: dir, keep: keep, failures: ratelimit.NewCounter(time.Minute)}, nil
}

func (d *dayFile) write(now time.Time, stamp, line string) {
	if d == nil {
		return
	}
	day := now.Format(dayLayout)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == nil || d.day != day {
		if err := d.switchTo(day, now); err != nil {
			d.fail(err)
			return
		}
	}
	if _, err := fmt.Fprintf(d.out, "%s %s\n", stamp, line); err != nil {
		d.fail(fmt.Errorf("write %s: %w", d.out.Name(), err))
	}
}

func (d *dayFile) switchTo(day string, now time.Time) error {
	if d.out != nil {
		_ = d.out.Close()
		d.out = nil
	}
	path := filepath.Join(d.dir, filePrefix+day+fileSuffix)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	d.out = out
	d.day = day
	if _, err := prune(d.dir, now, d.keep); err != nil {
		d.fail(fmt.Errorf("prune %s: %w", d.dir, err))
	}
	return nil
}

// fail reports to stderr; the standard logger would write back into us.
func (d *dayFile) fail(err error) {
	if total, ok := d.failures.Inc(); ok {
		fmt.Fprintf(os.Stderr, "Logging: %v (file errors=%d)\n", err, total)
	}
}

func (d *dayFile) close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == nil {
		return nil
	}
	err := d.out.Close()
	d.out = nil
	d.day = ""
	return err
}

// prune removes day files dated before the keep-day window ending today and
// returns how many it removed. Other files in dir are left alone.
func prune(dir string, now time.Time, keep int) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return 0, err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1-keep)
	removed := 0
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileSuffix)
		day, err := time.ParseInLocation(dayLayout, name, time.UTC)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed, nil
}
