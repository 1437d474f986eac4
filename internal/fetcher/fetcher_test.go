package fetcher

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "flow-test/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("User-agent: *\nDisallow:\n"))
	}))
	defer srv.Close()

	f := New(Options{UserAgent: "flow-test/1.0", Timeout: 5 * time.Second})
	status, body, err := f.Fetch(context.Background(), srv.URL+"/robots.txt")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Disallow")
}

func TestFetchDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("compressed rules"))
		gz.Close()
	}))
	defer srv.Close()

	f := New(Options{Timeout: 5 * time.Second})
	_, body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "compressed rules", string(body))
}

func TestFetchDecodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		bw.Write([]byte("brotli rules"))
		bw.Close()
	}))
	defer srv.Close()

	f := New(Options{Timeout: 5 * time.Second})
	_, body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "brotli rules", string(body))
}

func TestFetchEnforcesBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 1024; i++ {
			w.Write([]byte("0123456789"))
		}
	}))
	defer srv.Close()

	f := New(Options{Timeout: 5 * time.Second, MaxBodyBytes: 1024})
	status, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestFetchReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(Options{Timeout: 5 * time.Second})
	status, _, err := f.Fetch(context.Background(), srv.URL+"/robots.txt")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFetchConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := New(Options{Timeout: time.Second})
	_, _, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}
