package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewRunStoreWithPool(mock, "archive_runs")
	require.NoError(t, err)
	return store, mock
}

func TestNewRunStoreWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.Error(t, err)
	_, err = NewRunStoreWithPool(nil, "")
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS archive_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRunInsertsRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	submitted := time.Unix(1700000000, 0).UTC()
	run := archive.Run{
		ID:        "run-1",
		URL:       "https://example.com",
		Prefix:    "run-1",
		Status:    archive.RunStatusQueued,
		Submitted: submitted,
	}

	mock.ExpectExec("INSERT INTO archive_runs").
		WithArgs(
			run.ID,
			run.URL,
			run.Prefix,
			"queued",
			"",
			[]byte(`[]`),
			submitted,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunWritesCountersAndManifest(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	run := archive.Run{
		ID:       "run-1",
		Status:   archive.RunStatusSucceeded,
		State:    archive.StatePersisted,
		IndexURL: "/archive/run-1/index.html",
		Counters: archive.RunCounters{Discovered: 3, Stored: 2, Skipped: 1},
		Manifest: archive.Manifest{{Name: "k.js", URL: "http://ex.com/a.js"}},
	}

	mock.ExpectExec("UPDATE archive_runs SET").
		WithArgs(
			run.ID,
			"succeeded",
			"persisted",
			run.IndexURL,
			"",
			3,
			2,
			1,
			[]byte(`[{"name":"k.js","url":"http://ex.com/a.js"}]`),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunUnknownID(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE archive_runs SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateRun(context.Background(), archive.Run{ID: "nope", Status: archive.RunStatusFailed})
	assert.True(t, errors.Is(err, archive.ErrNotFound))
}

func TestGetRunScansRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	submitted := time.Unix(1700000000, 0).UTC()
	started := submitted.Add(time.Second)
	finished := submitted.Add(2 * time.Second)

	rows := pgxmock.NewRows([]string{
		"id", "url", "prefix", "status", "state", "index_url", "error_text",
		"discovered", "stored", "skipped", "manifest", "submitted_at", "started_at", "finished_at",
	}).AddRow(
		"run-1", "https://example.com", "run-1", "succeeded", "persisted", "/a/run-1/index.html", "",
		1, 1, 0, []byte(`[{"name":"k.js","url":"http://ex.com/a.js"}]`), submitted, &started, &finished,
	)
	mock.ExpectQuery("SELECT").WithArgs("run-1").WillReturnRows(rows)

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, archive.RunStatusSucceeded, run.Status)
	assert.Equal(t, archive.StatePersisted, run.State)
	assert.Equal(t, archive.Manifest{{Name: "k.js", URL: "http://ex.com/a.js"}}, run.Manifest)
	require.NotNil(t, run.Finished)
	assert.Equal(t, finished, *run.Finished)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := store.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, archive.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
