package batch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/removin/removin/internal/filehandler"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

func init() {
	// Level 12 maps to SpeedBestCompression in klauspost/compress.
	zip.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})
}

// Bundler downloads processed batch outputs and packs them into a
// zstd-compressed ZIP.
type Bundler struct {
	httpClient *http.Client
}

// NewBundler creates a Bundler with a download timeout suited to CDN-hosted
// outputs.
func NewBundler() *Bundler {
	return &Bundler{httpClient: &http.Client{Timeout: 60 * time.Second}}
}

// Write downloads every successful item and writes one ZIP to w. Items that
// fail to download are skipped with a warning; Write fails only when no
// entry could be written.
func (b *Bundler) Write(ctx context.Context, items []ItemResult, w io.Writer) error {
	zw := zip.NewWriter(w)

	written := 0
	seen := make(map[string]int)
	for _, item := range items {
		if !item.Succeeded() {
			continue
		}

		data, err := b.fetch(ctx, item.OutputURL)
		if err != nil {
			log.Warn().Err(err).Str("file", item.Image.Name).Msg("Skipping output in bundle")
			continue
		}

		// Processed outputs are PNGs regardless of the input format.
		name := filehandler.SanitizeName(filehandler.ReplaceExt(item.Image.Name, ".png"))
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%d_%s", n, name)
		}
		seen[filehandler.SanitizeName(filehandler.ReplaceExt(item.Image.Name, ".png"))]++

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zipMethodZstd,
			Modified: time.Now(),
		})
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to create zip entry %s: %w", name, err)
		}
		if _, err := entry.Write(data); err != nil {
			zw.Close()
			return fmt.Errorf("failed to write zip entry %s: %w", name, err)
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize zip: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("no outputs to bundle")
	}
	return nil
}

func (b *Bundler) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
