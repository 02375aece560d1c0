package tiktok

import (
	"context"
	"errors"
	"fmt"
	"sync"

	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
)

// Orchestrator runs the dual-strategy acquisition engine. The browser
// strategy is primary; when it fails in a way that looks like active
// blocking, the orchestrator switches to the web strategy and retries
// the operation there. The switch is one-way for the orchestrator's
// lifetime: once TikTok has flagged the browser there is no value in
// going back.
type Orchestrator struct {
	mu       sync.Mutex
	primary  Scraper
	fallback Scraper
	strategy Strategy
	switched bool
	fbReady  bool
	log      logger.Logger
}

// NewOrchestrator builds the engine with the standard strategy pair.
func NewOrchestrator(opts Options) *Orchestrator {
	return newOrchestrator(NewBrowserScraper(opts), NewWebScraper(opts), opts.logger())
}

// newOrchestrator wires explicit strategies, used by tests.
func newOrchestrator(primary, fallback Scraper, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		primary:  primary,
		fallback: fallback,
		strategy: StrategyBrowser,
		log:      log.WithField("component", "orchestrator"),
	}
}

// Initialize starts the primary strategy. If the browser cannot come up
// inside its startup budget the engine degrades to the web strategy
// immediately; only when both strategies fail to initialize does the
// error propagate.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	err := o.primary.Initialize(ctx)
	if err == nil {
		o.log.InfoWithFields("acquisition engine ready", map[string]interface{}{
			"strategy": string(StrategyBrowser),
		})
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	o.log.WarnWithFields("primary strategy failed to initialize, falling back", map[string]interface{}{
		"error": err.Error(),
	})

	if fbErr := o.switchToFallback(ctx, err); fbErr != nil {
		return fmt.Errorf("both strategies failed to initialize: %w", errors.Join(err, fbErr))
	}
	return nil
}

// ActiveStrategy reports which strategy currently serves requests.
func (o *Orchestrator) ActiveStrategy() Strategy {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.strategy
}

// current returns the scraper serving requests right now.
func (o *Orchestrator) current() (Scraper, Strategy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.switched {
		return o.fallback, StrategyWeb
	}
	return o.primary, StrategyBrowser
}

// switchToFallback performs the one-way strategy switch. It is a no-op
// if the switch already happened.
func (o *Orchestrator) switchToFallback(ctx context.Context, cause error) error {
	o.mu.Lock()
	if o.switched {
		o.mu.Unlock()
		return nil
	}
	o.switched = true
	o.strategy = StrategyWeb
	needInit := !o.fbReady
	o.mu.Unlock()

	if err := o.primary.Close(); err != nil {
		o.log.WithError(err).Debug("closing primary strategy")
	}

	if needInit {
		if err := o.fallback.Initialize(ctx); err != nil {
			return fmt.Errorf("fallback strategy failed to initialize: %w", err)
		}
		o.mu.Lock()
		o.fbReady = true
		o.mu.Unlock()
	}

	o.log.WarnWithFields("switched acquisition strategy", map[string]interface{}{
		"from":  string(StrategyBrowser),
		"to":    string(StrategyWeb),
		"cause": cause.Error(),
	})
	return nil
}

// withFallback runs fn against the active strategy. A blocking failure
// on the primary triggers the switchover and one re-run on the
// fallback; terminal and other failures propagate untouched. A plain
// function instead of a method because methods cannot carry type
// parameters.
func withFallback[T any](ctx context.Context, o *Orchestrator, fn func(Scraper) (T, error)) (T, error) {
	var zero T

	scraper, strategy := o.current()
	result, err := fn(scraper)
	if err == nil {
		return result, nil
	}
	if strategy == StrategyWeb || !errs.IsBlocking(err) {
		return zero, err
	}

	if swErr := o.switchToFallback(ctx, err); swErr != nil {
		return zero, errors.Join(err, swErr)
	}

	scraper, _ = o.current()
	return fn(scraper)
}

// GetUserProfile fetches creator metadata through the active strategy.
func (o *Orchestrator) GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	return withFallback(ctx, o, func(s Scraper) (*models.UserProfile, error) {
		return s.GetUserProfile(ctx, username)
	})
}

// GetUserVideos fetches the video catalog through the active strategy.
func (o *Orchestrator) GetUserVideos(ctx context.Context, username string, maxVideos int) ([]models.VideoInfo, error) {
	return withFallback(ctx, o, func(s Scraper) ([]models.VideoInfo, error) {
		return s.GetUserVideos(ctx, username, maxVideos)
	})
}

// The orchestrator stands in wherever a single strategy would.
var _ Scraper = (*Orchestrator)(nil)

// Close shuts down whichever strategies are live.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	switched, fbReady := o.switched, o.fbReady
	o.mu.Unlock()

	var errList []error
	if !switched {
		if err := o.primary.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	if fbReady || switched {
		if err := o.fallback.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
