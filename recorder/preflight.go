package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// PreflightResult reports the outcome of a database preflight.
type PreflightResult struct {
	Healthy        bool
	Quarantined    bool
	QuarantinePath string
	Elapsed        time.Duration
}

// Preflight runs a bounded quick_check on an existing database. A corrupt
// file (and its sidecars) is renamed aside so the recorder can start fresh
// rather than failing startup.
func Preflight(path string, timeout time.Duration) (PreflightResult, error) {
	res := PreflightResult{}
	if strings.TrimSpace(path) == "" {
		return res, errors.New("recorder: preflight: empty path")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		res.Healthy = true
		return res, nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return res, fmt.Errorf("recorder: preflight open: %w", err)
	}
	checkErr := quickCheck(ctx, db)
	_ = db.Close()
	res.Elapsed = time.Since(start)
	if checkErr == nil {
		res.Healthy = true
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("recorder: preflight timed out after %s", timeout)
	}
	dest, err := quarantine(path)
	if err != nil {
		return res, fmt.Errorf("recorder: quarantine failed: %w (quick_check=%v)", err, checkErr)
	}
	res.Quarantined = true
	res.QuarantinePath = dest
	log.Printf("Recorder: quick_check failed (%v); quarantined to %s", checkErr, dest)
	return res, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func quarantine(path string) (string, error) {
	suffix := ".bad-" + time.Now().UTC().Format("20060102T150405Z")
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := os.Rename(p, p+suffix); err != nil {
			return "", err
		}
	}
	return path + suffix, nil
}
