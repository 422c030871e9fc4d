package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

func TestNewValidatesAndDefaults(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	r, err := New(Config{}, nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Nil(t, r.slots)
	assert.Equal(t, defaultNavigationTimeout, r.cfg.NavigationTimeout)
	assert.Equal(t, defaultSettleDelay, r.cfg.SettleDelay)

	r2, err := New(Config{MaxParallel: 2, SettleDelay: time.Second}, nil)
	require.NoError(t, err)
	defer r2.Close()
	assert.NotNil(t, r2.slots)
	assert.Equal(t, time.Second, r2.cfg.SettleDelay)
}

func TestFetchCanceledWhileWaitingForSlot(t *testing.T) {
	t.Parallel()

	r, err := New(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	defer r.Close()
	require.True(t, r.slots.TryAcquire(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Fetch(ctx, archive.FetchRequest{URL: "https://example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNetworkHeadersFoldsRepeatedValues(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{
		"Accept-Language": {"en", "de"},
		"X-Empty":         {},
	})
	assert.Equal(t, network.Headers{"Accept-Language": "en, de"}, got)
}

func TestDocumentTrackerKeepsMainFrame(t *testing.T) {
	t.Parallel()

	doc := &documentTracker{}
	doc.observe(&network.EventRequestWillBeSent{
		Type:    network.ResourceTypeDocument,
		FrameID: "main",
	})
	doc.observe(&network.EventRequestWillBeSent{
		Type:             network.ResourceTypeDocument,
		FrameID:          "main",
		RedirectResponse: &network.Response{Status: 301},
	})
	doc.observe(&network.EventResponseReceived{
		Type:    network.ResourceTypeDocument,
		FrameID: "main",
		Response: &network.Response{
			Status:  203,
			URL:     "https://example.com/final",
			Headers: network.Headers{"X-Request-ID": "abc", "Content-Length": "10"},
		},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "ad-frame",
		Response: &network.Response{Status: 404, URL: "https://ads.example.net/"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		FrameID:  "main",
		Response: &network.Response{Status: 500, URL: "https://example.com/app.js"},
	})

	resp := doc.response("https://example.com/start", "https://example.com/final#top")
	assert.Equal(t, 1, doc.redirectCount())
	assert.Equal(t, 203, resp.StatusCode)
	assert.Equal(t, "https://example.com/final", resp.URL)
	assert.Equal(t, "abc", resp.Headers.Get("X-Request-ID"))
	assert.Empty(t, resp.Headers.Get("Content-Length"))
	assert.Equal(t, "text/html; charset=utf-8", resp.ContentType())
}

func TestDocumentTrackerFallbacks(t *testing.T) {
	t.Parallel()

	resp := (&documentTracker{}).response("https://req.example", "https://loc.example")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://loc.example", resp.URL)

	resp = (&documentTracker{}).response("https://req.example", "")
	assert.Equal(t, "https://req.example", resp.URL)
}

func TestHeadersFromNetwork(t *testing.T) {
	t.Parallel()

	h := headersFromNetwork(network.Headers{
		"Set-Cookie": []any{"a=1", "b=2"},
		"Age":        float64(12),
		"Server":     "nginx",
	})
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
	assert.Equal(t, "12", h.Get("Age"))
	assert.Equal(t, "nginx", h.Get("Server"))
}

func TestNoopFetcher(t *testing.T) {
	t.Parallel()

	_, err := NewNoop(nil).Fetch(context.Background(), archive.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, ErrDisabled)

	cause := errors.New("chrome not found")
	_, err = NewNoop(cause).Fetch(context.Background(), archive.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, ErrDisabled)
	assert.Contains(t, err.Error(), "chrome not found")
}
