package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"enginewatch/sensor"
)

type stubService struct {
	querySnap  sensor.Snapshot
	queryCalls int
	ingested   []sensor.Snapshot
	severity   sensor.Severity
	classified []sensor.Reading
}

func (s *stubService) Query(context.Context) sensor.Snapshot {
	s.queryCalls++
	return s.querySnap
}

func (s *stubService) Ingest(batch sensor.Snapshot) int {
	s.ingested = append(s.ingested, batch)
	return len(batch)
}

func (s *stubService) Classify(_ context.Context, r sensor.Reading) sensor.Severity {
	s.classified = append(s.classified, r)
	return s.severity
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIngestAlwaysSucceeds(t *testing.T) {
	svc := &stubService{}
	srv := NewServer(Deps{Service: svc})

	cases := []struct {
		body string
		want string
	}{
		{`{"sensors":[{"id":"rpm","value":1,"severity":"critical"},{"id":"oil_temp","value":90}]}`, `{"ok":true,"count":2}`},
		{`{"foo":1}`, `{"ok":true,"count":0}`},
		{`not json at all`, `{"ok":true,"count":0}`},
		{``, `{"ok":true,"count":0}`},
		{`{"sensors":"x"}`, `{"ok":true,"count":0}`},
	}
	for _, tc := range cases {
		rr := do(t, srv, http.MethodPost, "/sensors/ingest", tc.body)
		if rr.Code != http.StatusOK {
			t.Fatalf("body %q: expected 200, got %d", tc.body, rr.Code)
		}
		if got := strings.TrimSpace(rr.Body.String()); got != tc.want {
			t.Fatalf("body %q: expected %s, got %s", tc.body, tc.want, got)
		}
	}
	if len(svc.ingested) != len(cases) {
		t.Fatalf("expected every request to reach Ingest, got %d", len(svc.ingested))
	}
	if first := svc.ingested[0]; !first[0].Critical || first[1].Critical {
		t.Fatalf("expected critical to be derived from severity: %+v", first)
	}
}

func TestQueryReturnsSnapshot(t *testing.T) {
	svc := &stubService{querySnap: sensor.Snapshot{{ID: "fuel_level", Value: sensor.Number(42), Unit: "%"}}}
	srv := NewServer(Deps{Service: svc})
	rr := do(t, srv, http.MethodGet, "/sensors/test", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Body.String(), `[{"id":"fuel_level"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if svc.queryCalls != 1 {
		t.Fatalf("expected one query call, got %d", svc.queryCalls)
	}

	svc.querySnap = nil
	rr = do(t, srv, http.MethodGet, "/sensors/test", "")
	if rr.Body.String() != "[]" {
		t.Fatalf("expected empty array, got %s", rr.Body.String())
	}
}

func TestAnalyze(t *testing.T) {
	svc := &stubService{severity: sensor.SeverityWarning}
	srv := NewServer(Deps{Service: svc})
	rr := do(t, srv, http.MethodPost, "/sensors/analyze", `{"id":"vibration","value":7.5}`)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"severity":"warning"}` {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
	if len(svc.classified) != 1 || svc.classified[0].ID != "vibration" {
		t.Fatalf("expected reading to be forwarded, got %+v", svc.classified)
	}
	rr = do(t, srv, http.MethodPost, "/sensors/analyze", `{{`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", rr.Code)
	}
}

func TestOptionalRoutes(t *testing.T) {
	srv := NewServer(Deps{Service: &stubService{}})
	if rr := do(t, srv, http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected metrics route to be absent, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "m") })
	srv = NewServer(Deps{
		Service: &stubService{},
		Metrics: metrics,
		Health:  func() any { return map[string]int{"subscribers": 2} },
	})
	if rr := do(t, srv, http.MethodGet, "/metrics", ""); rr.Body.String() != "m" {
		t.Fatalf("expected metrics handler to be mounted")
	}
	if rr := do(t, srv, http.MethodGet, "/healthz", ""); !strings.Contains(rr.Body.String(), `"subscribers":2`) {
		t.Fatalf("expected custom health payload, got %s", rr.Body.String())
	}
}

func TestWrongMethodRejected(t *testing.T) {
	srv := NewServer(Deps{Service: &stubService{}})
	if rr := do(t, srv, http.MethodGet, "/sensors/ingest", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
