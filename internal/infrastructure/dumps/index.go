package dumps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PageviewsETL/internal/domain"
	"PageviewsETL/internal/ports"
)

var dumpNameExpr = regexp.MustCompile(`^pageviews-(\d{8}-\d{2})0000\.gz$`)

// Index reads the monthly directory listing a Wikimedia mirror serves.
type Index struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

var _ ports.DumpIndex = (*Index)(nil)

// NewIndex wires an HTTP client; a nil client gets a 30s timeout.
func NewIndex(baseURL, userAgent string, client *http.Client, logger *slog.Logger) *Index {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Index{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		client:    client,
		logger:    logger,
	}
}

// PublishedHours lists, oldest first, every hourly dump linked from the month page.
func (i *Index) PublishedHours(ctx context.Context, month time.Time) ([]time.Time, error) {
	month = month.UTC()
	pageURL := fmt.Sprintf("%s/%s/", i.baseURL, monthPath(month))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if i.userAgent != "" {
		req.Header.Set("User-Agent", i.userAgent)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %v", domain.ErrTransientFetch, pageURL, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, pageURL); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing %s: %v", domain.ErrTransientFetch, pageURL, err)
	}

	hours := parseListing(doc)
	i.logger.Debug("listing parsed", "url", pageURL, "hours", len(hours))
	return hours, nil
}

// Latest returns the newest published hour of the month.
func (i *Index) Latest(ctx context.Context, month time.Time) (time.Time, error) {
	hours, err := i.PublishedHours(ctx, month)
	if err != nil {
		return time.Time{}, err
	}
	if len(hours) == 0 {
		return time.Time{}, fmt.Errorf("%w: no dumps listed for %s", domain.ErrNotFound, month.Format("2006-01"))
	}
	return hours[len(hours)-1], nil
}

func parseListing(doc *goquery.Document) []time.Time {
	seen := map[time.Time]struct{}{}
	var hours []time.Time

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = href[strings.LastIndex(href, "/")+1:]
		m := dumpNameExpr.FindStringSubmatch(href)
		if m == nil {
			return
		}
		t, err := time.Parse("20060102-15", m[1])
		if err != nil {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		hours = append(hours, t)
	})

	sort.Slice(hours, func(a, b int) bool { return hours[a].Before(hours[b]) })
	return hours
}
