// Package retry provides backoff and retry logic for transient failures
// in scraping and download operations.
//
// Features:
//   - Multiple backoff strategies (exponential, constant, fixed schedule)
//   - Context support for cancellation
//   - Configurable retry predicates
//   - A preset detection policy matching the pacing bot-detection
//     responses call for (5s, then 10s)
//
// Basic usage:
//
//	policy := &retry.Policy{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: 2 * time.Second},
//		RetryIf:     errors.IsRetryable,
//		Logger:      logger.GetLogger(),
//	}
//	err := policy.Do(ctx, func() error {
//		return fetcher.Download(url)
//	})
//
//	// Operations with results
//	videos, err := retry.DoWithResult(ctx, retry.DetectionPolicy(log), func() ([]models.VideoInfo, error) {
//		return scraper.GetUserVideos(ctx, username, 0)
//	})
package retry
