package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	"PageviewsETL/internal/artifact"
	"PageviewsETL/internal/domain"
	"PageviewsETL/internal/ports"
)

// DefaultBufferSize bounds the memory used per extraction.
const DefaultBufferSize = 64 * 1024

// Gunzip streams gzip dumps to plain text files.
type Gunzip struct {
	bufferSize int
	logger     *slog.Logger
}

var _ ports.Extractor = (*Gunzip)(nil)

// NewGunzip builds an extractor; bufferSize <= 0 selects DefaultBufferSize.
func NewGunzip(bufferSize int, logger *slog.Logger) *Gunzip {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gunzip{bufferSize: bufferSize, logger: logger}
}

// Extract decompresses src into dst unless dst already holds data.
func (g *Gunzip) Extract(ctx context.Context, src, dst string) (domain.ArtifactResult, error) {
	present, size, err := artifact.Present(dst)
	if err != nil {
		return domain.ArtifactResult{}, err
	}
	if present {
		g.logger.Info("dump already extracted", "path", dst, "size", humanize.Bytes(uint64(size)))
		return domain.ArtifactResult{Path: dst, Bytes: size, Skipped: true, Reason: domain.SkipReasonPresent}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.ArtifactResult{}, err
	}

	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ArtifactResult{}, fmt.Errorf("%w: compressed dump %s not found (fetch stage not run?)", domain.ErrIO, src)
	}
	if err != nil {
		return domain.ArtifactResult{}, fmt.Errorf("%w: open %s: %v", domain.ErrIO, src, err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return domain.ArtifactResult{}, fmt.Errorf("%w: %s: %v", domain.ErrCorruptArchive, src, err)
	}
	defer zr.Close()

	out, err := artifact.Create(dst)
	if err != nil {
		return domain.ArtifactResult{}, err
	}

	g.logger.Info("extracting dump", "src", src, "dst", dst)

	// Hide WriteTo so the copy is chunked by buf.
	buf := make([]byte, g.bufferSize)
	written, err := io.CopyBuffer(artifact.TagWriter(out), struct{ io.Reader }{zr}, buf)
	if err != nil {
		out.Abort()
		var werr *artifact.WriteError
		if errors.As(err, &werr) {
			return domain.ArtifactResult{}, fmt.Errorf("%w: write %s: %v", domain.ErrIO, dst, werr.Err)
		}
		return domain.ArtifactResult{}, fmt.Errorf("%w: %s after %d bytes: %v", domain.ErrCorruptArchive, src, written, err)
	}
	if err := out.Commit(); err != nil {
		return domain.ArtifactResult{}, err
	}

	g.logger.Info("extraction complete", "path", dst, "size", humanize.Bytes(uint64(written)))
	return domain.ArtifactResult{Path: dst, Bytes: written}, nil
}
