package storage

import (
	"context"
	"sync"
)

// DefaultBatchConcurrency bounds parallel object operations in a batch
// when the provider config does not override it.
const DefaultBatchConcurrency = 5

// BatchError records one failed item of a batch operation.
type BatchError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e BatchError) Error() string {
	return "batch item " + e.Key + ": " + e.Err.Error()
}

// Unwrap returns the item's underlying error.
func (e BatchError) Unwrap() error {
	return e.Err
}

// BatchResult reports per-item outcomes of a batch upload. Ordering
// follows the input items.
type BatchResult struct {
	Successful []UploadResult
	Failed     []BatchError
}

// DeleteBatchResult reports per-key outcomes of a batch delete. Ordering
// follows the input keys.
type DeleteBatchResult struct {
	Deleted []string
	Failed  []BatchError
}

// batchOutcome is one slot of a batch run, written exactly once by the
// worker that processed the item.
type batchOutcome[R any] struct {
	result R
	err    error
}

// runBatch processes items with at most limit concurrent fn calls and
// returns outcomes in input order. Workers stop picking up new items
// once ctx is canceled; in-flight calls see the cancellation through
// their own ctx use.
func runBatch[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) (R, error)) []batchOutcome[R] {
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}
	if limit > len(items) {
		limit = len(items)
	}

	outcomes := make([]batchOutcome[R], len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					outcomes[i].err = err
					continue
				}
				outcomes[i].result, outcomes[i].err = fn(ctx, items[i])
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

// UploadEach is the shared implementation behind Provider.UploadBatch:
// it fans uploads out over the provider's single-object Upload.
func UploadEach(ctx context.Context, p Provider, limit int, items []UploadItem, defaults *UploadOptions) (*BatchResult, error) {
	outcomes := runBatch(ctx, limit, items, func(ctx context.Context, item UploadItem) (*UploadResult, error) {
		opts := item.Options
		if opts == nil {
			opts = defaults
		}
		return p.Upload(ctx, item.Key, item.Body, opts)
	})

	res := &BatchResult{}
	for i, out := range outcomes {
		if out.err != nil {
			res.Failed = append(res.Failed, BatchError{Key: items[i].Key, Err: out.err})
			continue
		}
		res.Successful = append(res.Successful, *out.result)
	}
	return res, nil
}

// DeleteEach is the shared implementation behind Provider.DeleteBatch
// for backends without a native bulk delete call.
func DeleteEach(ctx context.Context, p Provider, limit int, keys []string) (*DeleteBatchResult, error) {
	outcomes := runBatch(ctx, limit, keys, func(ctx context.Context, key string) (bool, error) {
		return p.Delete(ctx, key)
	})

	res := &DeleteBatchResult{}
	for i, out := range outcomes {
		if out.err != nil {
			res.Failed = append(res.Failed, BatchError{Key: keys[i], Err: out.err})
			continue
		}
		res.Deleted = append(res.Deleted, keys[i])
	}
	return res, nil
}
