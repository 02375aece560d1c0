package tiktok

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
)

// maxProfileBodySize bounds how much of a profile page we read. State
// blocks sit well under this.
const maxProfileBodySize = 20 << 20 // 20 MB

// WebScraper is the fallback acquisition strategy. It fetches profile
// pages over plain HTTP and parses the embedded JSON state, the same
// state the browser strategy reads out of the rendered DOM.
type WebScraper struct {
	opts    Options
	log     logger.Logger
	client  *http.Client
	cookies map[string]string
}

// NewWebScraper creates the HTTP-based scraper.
func NewWebScraper(opts Options) *WebScraper {
	return &WebScraper{
		opts: opts,
		log:  opts.logger().WithField("strategy", string(StrategyWeb)),
	}
}

// Initialize builds the HTTP client. Unlike the browser strategy this
// cannot fail against the network; a bad proxy URL is the only error.
func (w *WebScraper) Initialize(ctx context.Context) error {
	transport := &http.Transport{}
	if w.opts.Proxy != "" {
		proxyURL, err := url.Parse(w.opts.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		w.log.InfoWithFields("using proxy", map[string]interface{}{"proxy": w.opts.Proxy})
	}

	w.client = &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}

	w.cookies = ParseCookie(w.opts.Cookie)
	if len(w.cookies) > 0 {
		w.log.InfoWithFields("using session cookies", map[string]interface{}{
			"count": len(w.cookies),
		})
		if missing := MissingImportantCookies(w.cookies); len(missing) > 0 {
			w.log.WarnWithFields("missing login-relevant cookies", map[string]interface{}{
				"missing": missing,
			})
		}
	}

	w.log.Info("web scraper initialized")
	return nil
}

// Close releases client resources.
func (w *WebScraper) Close() error {
	if w.client != nil {
		w.client.CloseIdleConnections()
	}
	return nil
}

// fetchPage fetches a page and maps HTTP failures onto the error
// taxonomy.
func (w *WebScraper) fetchPage(ctx context.Context, pageURL string) (string, error) {
	if w.client == nil {
		return "", fmt.Errorf("web scraper not initialized")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	userAgent := w.opts.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	for _, c := range HTTPCookies(w.cookies) {
		req.AddCookie(c)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", errs.New(errs.KindBlocking, "fetch_page", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", errs.Newf(errs.KindTerminal, "fetch_page", "profile not found at %s", pageURL)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return "", errs.Newf(errs.KindBlocking, "fetch_page", "blocked with status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", errs.Newf(errs.KindTransient, "fetch_page", "server error %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", errs.Newf(errs.KindUnknown, "fetch_page", "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBodySize))
	if err != nil {
		return "", errs.New(errs.KindTransient, "fetch_page", err)
	}
	if len(body) == 0 {
		return "", errs.Newf(errs.KindBlocking, "fetch_page", "empty response")
	}

	return string(body), nil
}

// GetUserProfile fetches creator metadata from the profile page state.
func (w *WebScraper) GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	w.log.InfoWithFields("fetching profile", map[string]interface{}{"username": username})

	html, err := w.fetchPage(ctx, ProfileURL(username))
	if err != nil {
		return nil, err
	}

	profile, err := parseProfile(html, username)
	if err != nil {
		return nil, errs.New(errs.KindBlocking, "get_user_profile", err)
	}

	w.log.InfoWithFields("profile retrieved", map[string]interface{}{
		"username":  username,
		"nickname":  profile.Nickname,
		"followers": profile.FollowerCount,
		"videos":    profile.VideoCount,
	})
	return profile, nil
}

// GetUserVideos fetches the creator's catalog from the profile page
// state. An empty catalog is reported as a blocking error: a live
// profile page without videos in its state means TikTok withheld them.
func (w *WebScraper) GetUserVideos(ctx context.Context, username string, maxVideos int) ([]models.VideoInfo, error) {
	w.log.InfoWithFields("fetching video catalog", map[string]interface{}{
		"username":   username,
		"max_videos": maxVideos,
	})

	html, err := w.fetchPage(ctx, ProfileURL(username))
	if err != nil {
		return nil, err
	}

	videos, err := parseVideos(html, username, maxVideos)
	if err != nil {
		return nil, errs.New(errs.KindBlocking, "get_user_videos", err)
	}
	if len(videos) == 0 {
		return nil, errs.Newf(errs.KindBlocking, "get_user_videos", "no videos in page state for @%s", username)
	}

	w.log.InfoWithFields("catalog retrieved", map[string]interface{}{
		"username": username,
		"count":    len(videos),
	})
	return videos, nil
}

var _ Scraper = (*WebScraper)(nil)
