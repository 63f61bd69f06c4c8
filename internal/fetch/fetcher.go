// Package fetch downloads remote images referenced by URL instead of
// uploaded directly.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"autostory/internal/domain"
)

const (
	fetchTimeout = 10 * time.Second
	maxBodyBytes = 15 << 20

	// Some image hosts refuse requests without a browser-like UA.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// Options configures the Fetcher.
type Options struct {
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Fetcher performs a single bounded GET per image URL. Redirects are
// followed; the response content type must match the image allow-list.
type Fetcher struct {
	client *http.Client
	logger zerolog.Logger
}

func New(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Fetcher{client: client, logger: opts.Logger}
}

// Image downloads the resource at imageURL. Every failure mode, bad
// status, disallowed content type, network error or timeout, is logged and
// returned as domain.ErrInvalidInput; no transport error propagates raw.
func (f *Fetcher) Image(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid image url", domain.ErrInvalidInput)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Str("url", imageURL).Msg("fetch: request failed")
		return nil, fmt.Errorf("%w: image download failed", domain.ErrInvalidInput)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn().Int("status", resp.StatusCode).Str("url", imageURL).Msg("fetch: non-success status")
		return nil, fmt.Errorf("%w: image download returned status %d", domain.ErrInvalidInput, resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: missing image content type", domain.ErrInvalidInput)
	}
	if _, ok := allowedTypes[mediaType]; !ok {
		f.logger.Warn().Str("content_type", mediaType).Str("url", imageURL).Msg("fetch: disallowed content type")
		return nil, fmt.Errorf("%w: content type %q not allowed", domain.ErrInvalidInput, mediaType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		f.logger.Warn().Err(err).Str("url", imageURL).Msg("fetch: body read failed")
		return nil, fmt.Errorf("%w: image download interrupted", domain.ErrInvalidInput)
	}
	return data, nil
}
