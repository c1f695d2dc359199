// Package resilience retries failing operations with exponential
// backoff and jitter.
//
// Retry attempts are context-aware: cancellation aborts both the wait
// between attempts and the next attempt itself. A storage call that
// should survive transient backend failures looks like:
//
//	meta, err := resilience.Retry(ctx, cfg, func() (*storage.FileMetadata, error) {
//	    return provider.Metadata(ctx, key)
//	})
//
// RetryIf decides which errors are worth another attempt. The default
// rules out context cancellation, honors the Retryable flag on coded
// application errors, and retries everything else. Storage call sites
// usually install storage.IsTransient instead.
package resilience
