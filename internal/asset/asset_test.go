package asset

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-archiver/internal/document"
	"github.com/JakeFAU/page-archiver/internal/hash/sha256"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func refsFor(t *testing.T, pageURL *url.URL, html string) []document.Reference {
	t.Helper()
	doc, err := document.Parse(pageURL, []byte(html))
	require.NoError(t, err)
	return document.Match(doc, document.DefaultRules)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	page := mustURL(t, "https://ex.com/dir/p")
	testCases := []struct {
		name    string
		literal string
		want    string
	}{
		{"scheme relative", "//cdn.ex.com/x.png", "https://cdn.ex.com/x.png"},
		{"root relative", "/a.js", "https://ex.com/a.js"},
		{"path relative", "b.css", "https://ex.com/dir/b.css"},
		{"parent relative", "../c.js", "https://ex.com/c.js"},
		{"absolute", "http://other.com/d.js?v=1", "http://other.com/d.js?v=1"},
		{"surrounding whitespace", "  /e.js ", "https://ex.com/e.js"},
		{"http-like relative path", "httpdocs/x.png", "https://ex.com/dir/httpdocs/x.png"},
		{"http-like file name", "https.js", "https://ex.com/dir/https.js"},
		{"uppercase scheme", "HTTPS://other.com/f.js", "HTTPS://other.com/f.js"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tc.literal, page)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeRejectsNonHTTPSchemes(t *testing.T) {
	t.Parallel()

	page := mustURL(t, "https://ex.com/p")
	for _, literal := range []string{"data:image/png;base64,AAAA", "javascript:void(0)", "mailto:a@b.c"} {
		_, err := Normalize(literal, page)
		require.True(t, errors.Is(err, ErrUnsupportedScheme), literal)
	}
}

func TestNewUsesLiteralTextForKey(t *testing.T) {
	t.Parallel()

	hasher := sha256.New()
	page := mustURL(t, "http://ex.com/p")
	refs := refsFor(t, page, `<script src="/a.js"></script><img src="/a.js"><img src="a.js">`)
	require.Len(t, refs, 3)

	first, err := New(refs[0], page, hasher)
	require.NoError(t, err)
	second, err := New(refs[1], page, hasher)
	require.NoError(t, err)
	third, err := New(refs[2], page, hasher)
	require.NoError(t, err)

	want, err := hasher.Hash([]byte("/a.js"))
	require.NoError(t, err)
	require.Equal(t, want, first.Key)
	require.Equal(t, first.Key, second.Key)
	require.NotEqual(t, first.Key, third.Key, "different literal text must not share a key")
	require.Equal(t, third.URL, first.URL, "both literals resolve to the same absolute url")
	require.Equal(t, "/a.js", first.Literal())
	require.Equal(t, ".js", first.DefaultExt)
	require.Equal(t, ".jpeg", second.DefaultExt)
	require.Empty(t, first.Name)
}

func TestNewSchemeRelativeImage(t *testing.T) {
	t.Parallel()

	page := mustURL(t, "https://ex.com/p")
	refs := refsFor(t, page, `<img src="//cdn.ex.com/x.png">`)
	require.Len(t, refs, 1)

	a, err := New(refs[0], page, sha256.New())
	require.NoError(t, err)
	require.Equal(t, "https://cdn.ex.com/x.png", a.URL)
}

func TestFinalizeBuildsName(t *testing.T) {
	t.Parallel()

	a := &Asset{Key: "abc"}
	a.Finalize([]byte("body"), ".css")
	require.Equal(t, "abc.css", a.Name)
	require.Equal(t, ".css", a.Ext)

	b := &Asset{Key: "def"}
	b.Finalize([]byte("body"), "")
	require.Equal(t, "def", b.Name)
}
