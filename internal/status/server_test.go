package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wikistream/pkg/wikistream"
)

type staticLanguages []wikistream.LanguageKey

func (l staticLanguages) ActiveLanguages() []wikistream.LanguageKey {
	return l
}

func newTestServer(t *testing.T, languages LanguageLister, clock func() time.Time) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := NewServer(DefaultAddr, languages, WithLogger(logger), WithClock(clock))
	if err != nil {
		t.Fatalf("building server failed: %v", err)
	}
	return server
}

func TestStatusReportsUptimeAndLanguages(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	now := started
	server := newTestServer(t, staticLanguages{"de", "en"}, func() time.Time { return now })
	now = started.Add(90 * time.Second)

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", recorder.Code, http.StatusOK)
	}
	var report Report
	if err := json.NewDecoder(recorder.Body).Decode(&report); err != nil {
		t.Fatalf("decoding report failed: %v", err)
	}
	if report.Status != "ok" {
		t.Fatalf("status = %q, want ok", report.Status)
	}
	if report.UptimeSeconds != 90 {
		t.Fatalf("uptime = %d, want 90", report.UptimeSeconds)
	}
	if len(report.ActiveLanguages) != 2 || report.ActiveLanguages[0] != "de" || report.ActiveLanguages[1] != "en" {
		t.Fatalf("active languages = %v", report.ActiveLanguages)
	}
}

func TestStatusWithNoActiveLanguages(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, staticLanguages{}, time.Now)

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))

	var report Report
	if err := json.NewDecoder(recorder.Body).Decode(&report); err != nil {
		t.Fatalf("decoding report failed: %v", err)
	}
	if report.ActiveLanguages == nil || len(report.ActiveLanguages) != 0 {
		t.Fatalf("active languages = %#v, want empty array", report.ActiveLanguages)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, staticLanguages{}, time.Now)

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", recorder.Code, http.StatusOK)
	}
	if recorder.Body.Len() == 0 {
		t.Fatal("expected a non-empty metrics exposition")
	}
}

func TestNewServerRejectsNilLister(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(DefaultAddr, nil); err == nil {
		t.Fatal("expected error for nil language lister")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, staticLanguages{}, time.Now)
	// Bind to an ephemeral port so parallel tests never collide.
	server.http.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run never returned after cancellation")
	}
}
