package gcs_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gcstorage "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/storage/gcs"
)

const bucketName = "test-bucket"

// newTestClient creates a Client pointed at a test server.
func newTestClient(t *testing.T, handler http.Handler) *gcs.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := gcstorage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	c, err := gcs.NewWithClient(client, bucketName)
	require.NoError(t, err)
	return c
}

func TestNewWithClientValidates(t *testing.T) {
	t.Parallel()

	_, err := gcs.NewWithClient(nil, bucketName)
	require.Error(t, err)
}

func TestPut(t *testing.T) {
	t.Parallel()

	objectName := "run/abc.js"
	objectData := []byte("console.log(1)")

	// Simulates the GCS JSON API for multipart uploads.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", bucketName))
		assert.Equal(t, objectName, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(objectData))
		assert.Contains(t, string(body), "text/javascript")

		fmt.Fprintln(w, `{ "name": "`+objectName+`" }`)
	})

	client := newTestClient(t, handler)
	err := client.Put(context.Background(), objectName, objectData, "text/javascript; charset=utf-8")
	assert.NoError(t, err)
}

func TestPutServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClient(t, handler)
	err := client.Put(context.Background(), "a.js", []byte("x"), "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, archive.ErrNotFound))
}

func TestStatMissingObject(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"error":{"code":404,"message":"No such object"}}`)
	})

	client := newTestClient(t, handler)
	err := client.Stat(context.Background(), "missing.css")
	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrNotFound))
}

func TestKeysSendsPrefix(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, fmt.Sprintf("/b/%s/o", bucketName)), r.URL.Path)
		assert.Equal(t, "run-1/", r.URL.Query().Get("prefix"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"kind":"storage#objects","items":[`+
			`{"kind":"storage#object","bucket":"`+bucketName+`","name":"run-1/index.html"},`+
			`{"kind":"storage#object","bucket":"`+bucketName+`","name":"run-1/a.js"}]}`)
	})

	client := newTestClient(t, handler)
	keys, err := client.Keys(context.Background(), "run-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/index.html", "run-1/a.js"}, keys)
}
