// Package tiktok implements the two acquisition strategies for reading a
// creator's profile and video catalog from TikTok.
//
// Both strategies implement the Scraper interface:
//   - BrowserScraper drives a headless Chrome instance via chromedp. The
//     rendered page carries the full catalog, so this is the primary
//     strategy.
//   - WebScraper fetches the profile page over plain HTTP and decodes the
//     JSON state TikTok embeds in it. It sees less of the catalog but
//     survives environments where a browser cannot run.
//
// The Orchestrator composes them: it initializes the browser first and
// switches to the web strategy, permanently for its lifetime, the first
// time an operation fails with a blocking error (bot detection, empty
// responses, init timeout).
//
// Usage:
//
//	scraper := tiktok.NewOrchestrator(tiktok.OptionsFromConfig(cfg, log))
//	if err := scraper.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer scraper.Close()
//
//	profile, err := scraper.GetUserProfile(ctx, "charlidamelio")
//	videos, err := scraper.GetUserVideos(ctx, "charlidamelio", 50)
//
// Session cookies captured from a logged-in browser (see ParseCookie)
// are attached by both strategies and make blocking far less likely.
package tiktok
