package dumps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"PageviewsETL/internal/artifact"
	"PageviewsETL/internal/domain"
	"PageviewsETL/internal/ports"
)

const copyBufferSize = 64 * 1024

// Fetcher downloads hourly dumps from a Wikimedia-style mirror.
type Fetcher struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

var _ ports.DumpFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets one with the given timeout.
func NewFetcher(baseURL, userAgent string, client *http.Client, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		client:    client,
		logger:    logger,
	}
}

// DumpURL builds <base>/<YYYY>/<YYYY-MM>/pageviews-<YYYYMMDD>-<HH>0000.gz.
func DumpURL(baseURL string, hour time.Time) string {
	hour = domain.TargetHour(hour)
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(baseURL, "/"), monthPath(hour), artifact.DumpName(hour))
}

func monthPath(t time.Time) string {
	return t.Format("2006") + "/" + t.Format("2006-01")
}

// Fetch stores the dump for hour at dst. An existing non-empty dst is kept as is.
func (f *Fetcher) Fetch(ctx context.Context, hour time.Time, dst string) (domain.ArtifactResult, error) {
	present, size, err := artifact.Present(dst)
	if err != nil {
		return domain.ArtifactResult{}, err
	}
	if present {
		f.logger.Info("dump already present", "path", dst, "size", humanize.Bytes(uint64(size)))
		return domain.ArtifactResult{Path: dst, Bytes: size, Skipped: true, Reason: domain.SkipReasonPresent}, nil
	}

	url := DumpURL(f.baseURL, hour)
	f.logger.Info("downloading dump", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ArtifactResult{}, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.ArtifactResult{}, fmt.Errorf("%w: request %s: %v", domain.ErrTransientFetch, url, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, url); err != nil {
		return domain.ArtifactResult{}, err
	}

	out, err := artifact.Create(dst)
	if err != nil {
		return domain.ArtifactResult{}, err
	}

	buf := make([]byte, copyBufferSize)
	written, err := io.CopyBuffer(artifact.TagWriter(out), resp.Body, buf)
	if err != nil {
		out.Abort()
		var werr *artifact.WriteError
		if errors.As(err, &werr) {
			return domain.ArtifactResult{}, fmt.Errorf("%w: write %s: %v", domain.ErrIO, dst, werr.Err)
		}
		return domain.ArtifactResult{}, fmt.Errorf("%w: read body of %s after %d bytes: %v", domain.ErrTransientFetch, url, written, err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		out.Abort()
		return domain.ArtifactResult{}, fmt.Errorf("%w: short body from %s: got %d of %d bytes", domain.ErrTransientFetch, url, written, resp.ContentLength)
	}
	if err := out.Commit(); err != nil {
		return domain.ArtifactResult{}, err
	}

	f.logger.Info("download complete", "path", dst, "size", humanize.Bytes(uint64(written)))
	return domain.ArtifactResult{Path: dst, Bytes: written}, nil
}

func classifyStatus(resp *http.Response, url string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %s returned %s (not published yet?)", domain.ErrNotFound, url, resp.Status)
	default:
		return fmt.Errorf("%w: %s returned %s", domain.ErrTransientFetch, url, resp.Status)
	}
}
