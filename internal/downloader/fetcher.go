package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/tiktok"
)

// MediaFetcher retrieves the bytes behind a catalog entry's media
// locator.
type MediaFetcher interface {
	Fetch(ctx context.Context, video models.VideoInfo) (io.ReadCloser, error)
}

// HTTPFetcher downloads media over HTTP with the session attached.
// TikTok's CDN checks the referer and the session cookies the same way
// the web frontend does.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	cookies   map[string]string
}

// NewHTTPFetcher creates a media fetcher.
func NewHTTPFetcher(timeout time.Duration, userAgent, cookie string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		cookies:   tiktok.ParseCookie(cookie),
	}
}

// Fetch streams the media body. The caller owns the ReadCloser.
func (f *HTTPFetcher) Fetch(ctx context.Context, video models.VideoInfo) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, video.MediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Referer", tiktok.BaseURL+"/")
	for _, c := range tiktok.HTTPCookies(f.cookies) {
		req.AddCookie(c)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.New(errs.KindTransient, "fetch_media", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, errs.Newf(errs.KindTerminal, "fetch_media", "media gone for video %s (status %d)", video.VideoID, resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, errs.Newf(errs.KindBlocking, "fetch_media", "blocked with status %d", resp.StatusCode)
	default:
		resp.Body.Close()
		return nil, errs.Newf(errs.KindTransient, "fetch_media", "unexpected status %d for video %s", resp.StatusCode, video.VideoID)
	}
}
