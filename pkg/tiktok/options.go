package tiktok

import (
	"time"

	"github.com/yunstech/tiktok-downloader/pkg/config"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
)

// Options configures both acquisition strategies.
type Options struct {
	// Cookie is a full Cookie header or a bare sessionid value.
	Cookie    string
	Proxy     string
	UserAgent string
	Locale    string
	Timezone  string
	// Headless controls browser visibility for the browser strategy.
	Headless bool
	// InitTimeout bounds browser startup. When it expires the
	// orchestrator falls back to the web strategy.
	InitTimeout time.Duration

	Logger logger.Logger
}

// OptionsFromConfig builds strategy options from the loaded config.
func OptionsFromConfig(cfg *config.Config, log logger.Logger) Options {
	return Options{
		Cookie:      cfg.TikTok.Cookie,
		Proxy:       cfg.TikTok.Proxy,
		UserAgent:   cfg.TikTok.UserAgent,
		Locale:      cfg.TikTok.Locale,
		Timezone:    cfg.TikTok.Timezone,
		Headless:    cfg.TikTok.Headless,
		InitTimeout: cfg.TikTok.InitTimeout,
		Logger:      log,
	}
}

func (o Options) logger() logger.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logger.GetLogger()
}
