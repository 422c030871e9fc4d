package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"cdn subdomain", "https://cdn.static.example.com/a.js", "example.com"},
		{"multi-part suffix", "https://img.shop.example.co.uk/p.png", "example.co.uk"},
		{"localhost", "http://localhost:8080/", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitAndObserve(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if archiverRunsTotal == nil || archiverAssetsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(archiverAssetsTotal.WithLabelValues("metrics.test", "stored"))
	ObserveAsset("https://metrics.test/a.js", "stored", 128)
	after := testutil.ToFloat64(archiverAssetsTotal.WithLabelValues("metrics.test", "stored"))
	if after-before != 1 {
		t.Errorf("expected stored asset counter to grow by 1, got %f", after-before)
	}
	if val := testutil.ToFloat64(archiverBytesTotal.WithLabelValues("metrics.test")); val < 128 {
		t.Errorf("expected bytes counter >= 128, got %f", val)
	}

	ObserveRun("succeeded", time.Second)
	if val := testutil.CollectAndCount(archiverRunDurationSeconds); val <= 0 {
		t.Errorf("expected run duration to be observed, got %d", val)
	}

	failedBefore := testutil.ToFloat64(archiverStorageOpsTotal.WithLabelValues("error"))
	ObserveStorageWrite(false)
	if got := testutil.ToFloat64(archiverStorageOpsTotal.WithLabelValues("error")); got-failedBefore != 1 {
		t.Errorf("expected storage error counter to grow by 1")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
