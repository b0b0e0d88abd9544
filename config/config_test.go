package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":3000" || cfg.RefreshInterval() != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg.Server)
	}
	if cfg.Analysis.BaseURL != "http://localhost:5000" || cfg.AnalysisTimeout() != 0 {
		t.Fatalf("unexpected analysis defaults: %+v", cfg.Analysis)
	}
	if cfg.Viewer.URL != "ws://localhost:3000/alerts" || cfg.Viewer.Mode != ModeTview || cfg.Viewer.Locale != "ru" {
		t.Fatalf("unexpected viewer defaults: %+v", cfg.Viewer)
	}
	if cfg.Telnet.Enabled || cfg.MQTT.Enabled || cfg.Recorder.Enabled {
		t.Fatalf("expected optional subscribers disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := []byte(`
server:
  http_addr: "127.0.0.1:8080"
refresh:
  interval_ms: 500
analysis:
  base_url: "http://analysis:5000"
  timeout_ms: 1500
mqtt:
  enabled: true
  broker: "broker.local"
  qos: 1
viewer:
  mode: " Plain "
  locale: en
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8080" || cfg.RefreshInterval() != 500*time.Millisecond {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Server, cfg.Refresh)
	}
	if cfg.AnalysisTimeout() != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s timeout, got %s", cfg.AnalysisTimeout())
	}
	if cfg.MQTT.Port != 1883 || cfg.MQTT.Topic != "enginewatch/sensors/update" {
		t.Fatalf("expected mqtt defaults to fill gaps: %+v", cfg.MQTT)
	}
	if cfg.Viewer.Mode != ModePlain {
		t.Fatalf("expected normalized mode, got %q", cfg.Viewer.Mode)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"mqtt without broker": "mqtt:\n  enabled: true\n",
		"bad mode":            "viewer:\n  mode: gui\n",
		"bad viewer url":      "viewer:\n  url: http://localhost:3000/alerts\n",
		"relative base url":   "analysis:\n  base_url: localhost\n",
		"negative timeout":    "analysis:\n  timeout_ms: -1\n",
		"bad qos":             "mqtt:\n  qos: 3\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "cfg.yaml")
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
