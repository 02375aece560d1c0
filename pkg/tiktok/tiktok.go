package tiktok

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yunstech/tiktok-downloader/pkg/models"
)

// BaseURL is the TikTok web frontend.
const BaseURL = "https://www.tiktok.com"

// Strategy identifies which acquisition path is active.
type Strategy string

const (
	// StrategyBrowser drives a real headless browser. It is the primary
	// strategy because the rendered page carries the full catalog.
	StrategyBrowser Strategy = "browser"
	// StrategyWeb fetches profile pages over plain HTTP and parses the
	// embedded JSON state. It is the fallback when the browser path is
	// blocked or unavailable.
	StrategyWeb Strategy = "web"
)

// Scraper is the contract both acquisition strategies implement.
type Scraper interface {
	// Initialize prepares the strategy for use. Must be called before
	// any fetch.
	Initialize(ctx context.Context) error

	// GetUserProfile fetches creator metadata.
	GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error)

	// GetUserVideos fetches the creator's video catalog, newest first.
	// maxVideos of 0 means no cap.
	GetUserVideos(ctx context.Context, username string, maxVideos int) ([]models.VideoInfo, error)

	// Close releases strategy resources.
	Close() error
}

// ProfileURL returns the canonical profile page for a username.
func ProfileURL(username string) string {
	return fmt.Sprintf("%s/@%s", BaseURL, username)
}

// VideoURL returns the canonical page for a single video.
func VideoURL(username, videoID string) string {
	return fmt.Sprintf("%s/@%s/video/%s", BaseURL, username, videoID)
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._]{1,24}$`)

// SanitizeUsername strips decorations people paste along with a handle:
// a leading @, surrounding whitespace, or a full profile URL.
func SanitizeUsername(raw string) string {
	username := strings.TrimSpace(raw)
	username = strings.TrimPrefix(username, BaseURL+"/")
	username = strings.TrimPrefix(username, "@")
	if i := strings.IndexAny(username, "/?"); i >= 0 {
		username = username[:i]
	}
	return username
}

// IsValidUsername reports whether username looks like a TikTok handle.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}
