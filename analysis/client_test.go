package analysis

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"enginewatch/sensor"
)

func TestSimulateMapsSensors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/simulate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"sensors":[{"id":"rpm","value":3100,"severity":"critical"},{"id":"fuel_leak","value":false,"severity":"normal"}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(Options{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	snap, err := c.Simulate(context.Background())
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(snap) != 2 || !snap[0].Critical || snap[1].Critical {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSimulateMissingSensorsIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()
	c, _ := NewClient(Options{BaseURL: srv.URL})
	snap, err := c.Simulate(context.Background())
	if err != nil || len(snap) != 0 {
		t.Fatalf("expected empty snapshot without error, got %d readings err=%v", len(snap), err)
	}
}

func TestSimulateFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		},
	}
	for name, h := range cases {
		srv := httptest.NewServer(h)
		c, _ := NewClient(Options{BaseURL: srv.URL})
		if _, err := c.Simulate(context.Background()); err == nil {
			t.Fatalf("%s: expected error", name)
		}
		srv.Close()
	}
}

func TestSimulateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	if _, err := c.Simulate(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout was not applied")
	}
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || !strings.Contains(string(body), `"id":"oil_pressure"`) {
			t.Errorf("unexpected request %s %s", r.Method, body)
		}
		_, _ = io.WriteString(w, `{"risk":"warning","probability":0.42}`)
	}))
	defer srv.Close()
	c, _ := NewClient(Options{BaseURL: srv.URL})
	sev, err := c.Analyze(context.Background(), sensor.Reading{ID: "oil_pressure", Value: sensor.Number(1.2)})
	if err != nil || sev != sensor.SeverityWarning {
		t.Fatalf("expected warning, got %v err=%v", sev, err)
	}
}

func TestAnalyzeUnknownRisk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"probability":0.1}`)
	}))
	defer srv.Close()
	c, _ := NewClient(Options{BaseURL: srv.URL})
	if _, err := c.Analyze(context.Background(), sensor.Reading{ID: "rpm"}); err == nil {
		t.Fatalf("expected error for missing risk")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "  "}); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}
