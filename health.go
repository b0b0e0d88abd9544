package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"enginewatch/broadcast"
	"enginewatch/stats"
)

const (
	freshnessInterval  = 30 * time.Second
	freshnessLogPrefix = "Freshness: "
	// A snapshot older than this many refresh intervals counts as stale.
	staleIntervals = 3
)

type freshnessSnapshot struct {
	LastCommit       time.Time
	Threshold        time.Duration
	Subscribers      int
	Drops            uint64
	AnalysisFailures uint64
}

type freshnessState struct {
	stale       bool
	initialized bool
}

func freshnessFromTracker(tracker *stats.Tracker, hub *broadcast.Hub, refresh time.Duration) freshnessSnapshot {
	var failures uint64
	for _, n := range tracker.GetAnalysisFailures() {
		failures += n
	}
	return freshnessSnapshot{
		LastCommit:       tracker.LastCommit(),
		Threshold:        staleIntervals * refresh,
		Subscribers:      hub.Count(),
		Drops:            tracker.Drops(),
		AnalysisFailures: failures,
	}
}

// Purpose: Periodically log snapshot freshness transitions with low noise.
// Key aspects: Reports only when the stale/fresh state changes.
// Upstream: run after the refresher starts.
// Downstream: log.Printf.
func startFreshnessMonitor(ctx context.Context, interval time.Duration, snapshot func() freshnessSnapshot) {
	if snapshot == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		var state freshnessState
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state = checkFreshness(state, snapshot(), time.Now(), log.Printf)
			}
		}
	}()
}

func checkFreshness(state freshnessState, snap freshnessSnapshot, now time.Time, logf func(string, ...any)) freshnessState {
	stale := isStale(snap, now)
	if !state.initialized || state.stale != stale {
		logf("%s%s", freshnessLogPrefix, formatFreshnessLine(snap, stale, now))
	}
	return freshnessState{stale: stale, initialized: true}
}

func isStale(snap freshnessSnapshot, now time.Time) bool {
	if snap.LastCommit.IsZero() {
		return true
	}
	return snap.Threshold > 0 && now.Sub(snap.LastCommit) > snap.Threshold
}

func formatFreshnessLine(snap freshnessSnapshot, stale bool, now time.Time) string {
	state := "fresh"
	if stale {
		state = "stale"
	}
	var b strings.Builder
	b.WriteString("snapshot ")
	b.WriteString(state)
	b.WriteString(" last_commit=")
	b.WriteString(ageString(now, snap.LastCommit))
	b.WriteString(fmt.Sprintf(" subscribers=%d", snap.Subscribers))
	if snap.Drops > 0 {
		b.WriteString(fmt.Sprintf(" drops=%d", snap.Drops))
	}
	if snap.AnalysisFailures > 0 {
		b.WriteString(fmt.Sprintf(" analysis_failures=%d", snap.AnalysisFailures))
	}
	return b.String()
}

func ageString(now time.Time, at time.Time) string {
	if at.IsZero() {
		return "never"
	}
	age := now.Sub(at)
	if age < 0 {
		age = 0
	}
	if age < time.Second {
		return "0s"
	}
	return age.Truncate(time.Second).String()
}

type healthPayload struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	LastCommit  string            `json:"last_commit"`
	Subscribers int               `json:"subscribers"`
	Commits     map[string]uint64 `json:"commits"`
	Readings    uint64            `json:"readings"`
	Publishes   uint64            `json:"publishes"`
	Drops       uint64            `json:"drops"`
}

// buildHealth reports "ok" while the snapshot is fresh and "stale" otherwise.
func buildHealth(now time.Time, tracker *stats.Tracker, hub *broadcast.Hub, refresh time.Duration) healthPayload {
	snap := freshnessFromTracker(tracker, hub, refresh)
	status := "ok"
	if isStale(snap, now) {
		status = "stale"
	}
	return healthPayload{
		Status:      status,
		Uptime:      tracker.GetUptime().Truncate(time.Second).String(),
		LastCommit:  ageString(now, snap.LastCommit),
		Subscribers: snap.Subscribers,
		Commits:     tracker.GetCommitCounts(),
		Readings:    tracker.Readings(),
		Publishes:   tracker.Publishes(),
		Drops:       snap.Drops,
	}
}
