package dumps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PageviewsETL/internal/domain"
)

const listing = `<html><body><h1>Index of /other/pageviews/2025/2025-12/</h1><hr><pre>
<a href="../">../</a>
<a href="pageviews-20251201-000000.gz">pageviews-20251201-000000.gz</a>   01-Dec-2025 00:52   47M
<a href="pageviews-20251201-010000.gz">pageviews-20251201-010000.gz</a>   01-Dec-2025 01:49   45M
<a href="projectviews-20251201-000000">projectviews-20251201-000000</a>   01-Dec-2025 00:52   1M
<a href="/other/pageviews/2025/2025-12/pageviews-20251217-160000.gz">pageviews-20251217-160000.gz</a>
<a href="pageviews-20251201-010000.gz">duplicate</a>
</pre><hr></body></html>`

func TestPublishedHours(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025/2025-12/", r.URL.Path)
		_, _ = w.Write([]byte(listing))
	}))
	defer server.Close()

	idx := NewIndex(server.URL, "", server.Client(), nil)
	month := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)

	hours, err := idx.PublishedHours(context.Background(), month)
	require.NoError(t, err)
	require.Len(t, hours, 3)
	assert.True(t, hours[0].Equal(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, hours[2].Equal(testHour))

	latest, err := idx.Latest(context.Background(), month)
	require.NoError(t, err)
	assert.True(t, latest.Equal(testHour))
}

func TestLatestEmptyMonth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><a href="../">../</a></body></html>`))
	}))
	defer server.Close()

	_, err := NewIndex(server.URL, "", server.Client(), nil).Latest(context.Background(), testHour)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublishedHoursMissingMonth(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewIndex(server.URL, "", server.Client(), nil).PublishedHours(context.Background(), testHour)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
