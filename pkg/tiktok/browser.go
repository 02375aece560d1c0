package tiktok

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/retry"
)

// scrollPause is how long to let the page load more catalog entries
// between scroll passes.
const scrollPause = 1500 * time.Millisecond

// BrowserScraper is the primary acquisition strategy. It drives a real
// headless browser so the profile page renders exactly as it would for
// a person, then reads the same embedded state the web strategy parses.
type BrowserScraper struct {
	opts Options
	log  logger.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowserScraper creates the browser-based scraper.
func NewBrowserScraper(opts Options) *BrowserScraper {
	return &BrowserScraper{
		opts: opts,
		log:  opts.logger().WithField("strategy", string(StrategyBrowser)),
	}
}

// Initialize launches the browser and applies the session. Startup is
// bounded by Options.InitTimeout; overrunning it is reported as a
// blocking error so the orchestrator falls back to the web strategy.
func (b *BrowserScraper) Initialize(ctx context.Context) error {
	timeout := b.opts.InitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan error, 1)
	go func() { done <- b.launch() }()

	select {
	case err := <-done:
		if err != nil {
			b.closeContexts()
			return err
		}
		b.log.Info("browser scraper initialized")
		return nil
	case <-time.After(timeout):
		b.closeContexts()
		return errs.Newf(errs.KindBlocking, "browser_init", "browser initialization timed out after %s", timeout)
	case <-ctx.Done():
		b.closeContexts()
		return ctx.Err()
	}
}

func (b *BrowserScraper) launch() error {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", b.locale()),
		chromedp.WindowSize(1920, 1080),
		chromedp.NoSandbox,
	)
	if b.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(b.opts.UserAgent))
	}
	if b.opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(b.opts.Proxy))
		b.log.InfoWithFields("using proxy", map[string]interface{}{"proxy": b.opts.Proxy})
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel

	actions := []chromedp.Action{network.Enable()}
	if b.opts.Timezone != "" {
		actions = append(actions, emulation.SetTimezoneOverride(b.opts.Timezone))
	}

	cookies := ParseCookie(b.opts.Cookie)
	if len(cookies) > 0 {
		b.log.InfoWithFields("applying session cookies", map[string]interface{}{
			"count": len(cookies),
		})
		if missing := MissingImportantCookies(cookies); len(missing) > 0 {
			b.log.WarnWithFields("missing login-relevant cookies", map[string]interface{}{
				"missing": missing,
			})
		}
		for name, value := range cookies {
			actions = append(actions, network.SetCookie(name, value).
				WithDomain(".tiktok.com").
				WithPath("/"))
		}
	}

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	return nil
}

func (b *BrowserScraper) closeContexts() {
	if b.browserCancel != nil {
		b.browserCancel()
		b.browserCancel = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	b.browserCtx = nil
}

// Close shuts the browser down.
func (b *BrowserScraper) Close() error {
	b.closeContexts()
	b.log.Info("browser scraper closed")
	return nil
}

func (b *BrowserScraper) locale() string {
	if b.opts.Locale != "" {
		return b.opts.Locale
	}
	return "en-US"
}

// renderProfilePage navigates to the profile, scrolls to force the
// catalog to populate, and returns the rendered markup.
func (b *BrowserScraper) renderProfilePage(ctx context.Context, username string, scrollPasses int) (string, error) {
	if b.browserCtx == nil {
		return "", fmt.Errorf("browser scraper not initialized")
	}

	tabCtx, cancel := context.WithTimeout(b.browserCtx, 60*time.Second)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-tabCtx.Done():
		}
	}()

	actions := []chromedp.Action{
		chromedp.Navigate(ProfileURL(username)),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2 * time.Second),
	}
	for i := 0; i < scrollPasses; i++ {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(scrollPause),
		)
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if tabCtx.Err() == context.DeadlineExceeded {
			return "", errs.Newf(errs.KindBlocking, "render_profile_page", "page render timed out for @%s", username)
		}
		return "", errs.New(errs.KindBlocking, "render_profile_page", err)
	}
	if html == "" {
		return "", errs.Newf(errs.KindBlocking, "render_profile_page", "empty response for @%s", username)
	}
	return html, nil
}

// scrollPassesFor sizes the scroll effort to the requested catalog
// depth. Each pass loads roughly a dozen entries.
func scrollPassesFor(maxVideos int) int {
	if maxVideos <= 0 {
		return 6
	}
	passes := maxVideos/12 + 1
	if passes > 10 {
		passes = 10
	}
	return passes
}

// GetUserProfile fetches creator metadata from the rendered page.
// Failures that look like detection are retried on the in-strategy
// schedule before the error escalates to the orchestrator.
func (b *BrowserScraper) GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	b.log.InfoWithFields("fetching profile", map[string]interface{}{"username": username})

	policy := retry.DetectionPolicy(b.log)
	return retry.DoWithResult(ctx, policy, func() (*models.UserProfile, error) {
		html, err := b.renderProfilePage(ctx, username, 0)
		if err != nil {
			return nil, err
		}
		profile, err := parseProfile(html, username)
		if err != nil {
			return nil, errs.New(errs.KindBlocking, "get_user_profile", err)
		}
		return profile, nil
	})
}

// GetUserVideos fetches the creator's catalog from the rendered page.
func (b *BrowserScraper) GetUserVideos(ctx context.Context, username string, maxVideos int) ([]models.VideoInfo, error) {
	b.log.InfoWithFields("fetching video catalog", map[string]interface{}{
		"username":   username,
		"max_videos": maxVideos,
	})

	policy := retry.DetectionPolicy(b.log)
	videos, err := retry.DoWithResult(ctx, policy, func() ([]models.VideoInfo, error) {
		html, err := b.renderProfilePage(ctx, username, scrollPassesFor(maxVideos))
		if err != nil {
			return nil, err
		}
		videos, err := parseVideos(html, username, maxVideos)
		if err != nil {
			return nil, errs.New(errs.KindBlocking, "get_user_videos", err)
		}
		if len(videos) == 0 {
			return nil, errs.Newf(errs.KindBlocking, "get_user_videos", "no videos in rendered page for @%s", username)
		}
		return videos, nil
	})
	if err != nil {
		return nil, err
	}

	b.log.InfoWithFields("catalog retrieved", map[string]interface{}{
		"username": username,
		"count":    len(videos),
	})
	return videos, nil
}

var _ Scraper = (*BrowserScraper)(nil)
