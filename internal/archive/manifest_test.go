package archive

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManifestBytesWritesHeaderAndEntries(t *testing.T) {
	t.Parallel()

	var m Manifest
	m.Append("abc.js", "http://ex.com/a.js")
	m.Append("def.css", "http://ex.com/b.css")

	want := "Hashed name, Original Asset URL\n" +
		"abc.js, http://ex.com/a.js\n" +
		"def.css, http://ex.com/b.css\n"
	require.Equal(t, want, string(m.Bytes()))
}

func TestManifestBytesEmptyKeepsHeader(t *testing.T) {
	t.Parallel()

	require.Equal(t, ManifestHeader+"\n", string(Manifest(nil).Bytes()))
}

func TestParseManifestReadsEntries(t *testing.T) {
	t.Parallel()

	var m Manifest
	m.Append("abc.js", "http://ex.com/a.js?x=1, 2")
	parsed, err := ParseManifest(m.Bytes())
	require.NoError(t, err)
	require.Equal(t, m, parsed)
}

func TestParseManifestRejectsBadHeader(t *testing.T) {
	t.Parallel()

	_, err := ParseManifest([]byte("name,url\n"))
	require.Error(t, err)

	_, err = ParseManifest(nil)
	require.Error(t, err)
}

func TestPhaseErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("run: %w", &PhaseError{Phase: StateFetched, Err: fmt.Errorf("%w: boom", ErrFetch)})
	require.ErrorIs(t, err, ErrFetch)
	phase, ok := FailedPhase(err)
	require.True(t, ok)
	require.Equal(t, StateFetched, phase)
	require.Contains(t, err.Error(), "archive fetched phase")

	_, ok = FailedPhase(errors.New("plain"))
	require.False(t, ok)
}

func TestStorageErrorUnwraps(t *testing.T) {
	t.Parallel()

	inner := errors.New("disk full")
	err := NewStorageError("store", "a.js", inner)
	require.ErrorIs(t, err, inner)
	require.Equal(t, `storage store "a.js": disk full`, err.Error())
	require.Equal(t, "storage list: disk full", NewStorageError("list", "", inner).Error())
}

func TestRunStatusIsTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, RunStatusQueued.IsTerminal())
	require.False(t, RunStatusRunning.IsTerminal())
	require.True(t, RunStatusSucceeded.IsTerminal())
	require.True(t, RunStatusFailed.IsTerminal())
	require.True(t, RunStatusCanceled.IsTerminal())
}
