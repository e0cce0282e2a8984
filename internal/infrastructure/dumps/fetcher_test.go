package dumps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PageviewsETL/internal/domain"
)

var testHour = time.Date(2025, time.December, 17, 16, 0, 0, 0, time.UTC)

func TestDumpURL(t *testing.T) {
	t.Parallel()

	got := DumpURL("https://dumps.wikimedia.org/other/pageviews/", testHour.Add(42*time.Minute))
	assert.Equal(t, "https://dumps.wikimedia.org/other/pageviews/2025/2025-12/pageviews-20251217-160000.gz", got)
}

func TestFetchDownloadsAndSkips(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/2025/2025-12/pageviews-20251217-160000.gz", r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("gzip-bytes"))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "raw", "pageviews-20251217-160000.gz")
	f := NewFetcher(server.URL, "test-agent", server.Client(), 0, nil)

	res, err := f.Fetch(context.Background(), testHour, dst)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(len("gzip-bytes")), res.Bytes)

	before, err := os.ReadFile(dst)
	require.NoError(t, err)

	res, err = f.Fetch(context.Background(), testHour, dst)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, domain.SkipReasonPresent, res.Reason)
	assert.Equal(t, int32(1), hits.Load(), "second fetch must not hit the network")

	after, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFetchClassifiesFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not published", http.StatusNotFound, domain.ErrNotFound},
		{"gone", http.StatusGone, domain.ErrNotFound},
		{"overloaded", http.StatusServiceUnavailable, domain.ErrTransientFetch},
		{"rate limited", http.StatusTooManyRequests, domain.ErrTransientFetch},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			dst := filepath.Join(t.TempDir(), "dump.gz")
			_, err := NewFetcher(server.URL, "", server.Client(), 0, nil).Fetch(context.Background(), testHour, dst)
			require.ErrorIs(t, err, tc.want)

			_, statErr := os.Stat(dst)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestFetchTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := server.Client()
	client.Timeout = 50 * time.Millisecond

	dst := filepath.Join(t.TempDir(), "dump.gz")
	_, err := NewFetcher(server.URL, "", client, 0, nil).Fetch(context.Background(), testHour, dst)
	require.ErrorIs(t, err, domain.ErrTransientFetch)
	assert.True(t, domain.Retryable(err))
}

func TestFetchShortBodyIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("only a few bytes"))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "dump.gz")
	_, err := NewFetcher(server.URL, "", server.Client(), 0, nil).Fetch(context.Background(), testHour, dst)
	require.ErrorIs(t, err, domain.ErrTransientFetch)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}
