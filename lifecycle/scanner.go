package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sean-she/photoflow-storage/audit"
	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/observability"
	"github.com/sean-she/photoflow-storage/storage"
	"github.com/sean-she/photoflow-storage/util"
)

// DefaultScanConcurrency bounds in-flight per-object work within a page.
const DefaultScanConcurrency = 8

// deletionLimitReason marks deletions blocked by the per-run cap.
const deletionLimitReason = "deletion limit reached"

// ScanOptions control one scanner run.
type ScanOptions struct {
	// Prefix restricts the scan to keys beginning with it.
	Prefix string

	// Execute dispatches matched actions. The default is a dry run that
	// only evaluates and counts what would happen.
	Execute bool

	// MaxFiles softly caps processed objects. The cap is checked per
	// object and at page boundaries, not at an exact point mid-page.
	MaxFiles int

	// Concurrency bounds in-flight per-object work within a page
	// (default DefaultScanConcurrency).
	Concurrency int

	// PageSize overrides the provider's listing page size.
	PageSize int

	// OnProgress, when set, receives a snapshot after every object.
	OnProgress func(ScanProgress)
}

// ScanProgress is a point-in-time view of a running scan.
type ScanProgress struct {
	Evaluated int
	Key       string
	Action    Action
}

// FileError records one per-object failure or blocked deletion.
type FileError struct {
	Key     string `json:"key"`
	Op      string `json:"op"`
	Message string `json:"message"`
}

// ExecutionResult is the aggregate report of one scan run. Counters
// reflect one outcome per object even under concurrent evaluation;
// objects matching no rule count only toward TotalEvaluated.
type ExecutionResult struct {
	ExecutionID    string        `json:"execution_id"`
	DryRun         bool          `json:"dry_run"`
	TotalEvaluated int           `json:"total_evaluated"`
	Matched        int           `json:"matched"`
	Archived       int           `json:"archived"`
	Deleted        int           `json:"deleted"`
	Kept           int           `json:"kept"`
	Blocked        int           `json:"blocked"`
	Errors         []FileError   `json:"errors,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration"`
}

// Scanner pages through a provider's objects, evaluates each against a
// policy and optionally executes the outcome.
type Scanner struct {
	provider  storage.Provider
	evaluator *Evaluator
	collector *Collector
	audit     *audit.Log
	log       *logger.Logger
}

var scanMetrics = sync.OnceValue(func() *observability.ScanMetrics {
	m, err := observability.NewScanMetrics(observability.Meter("photoflow.lifecycle"))
	if err != nil {
		return nil
	}
	return m
})

// NewScanner builds a Scanner. auditLog may be nil to disable audit
// appends regardless of the policy's audit toggle.
func NewScanner(p storage.Provider, ev *Evaluator, auditLog *audit.Log, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Scanner{
		provider:  p,
		evaluator: ev,
		collector: NewCollector(p),
		audit:     auditLog,
		log:       log.WithComponent("lifecycle.scanner"),
	}
}

// Run performs one scan. Per-object failures land in the result's error
// list and do not stop the run; a listing failure aborts between pages
// and returns the partial result alongside the error.
func (s *Scanner) Run(ctx context.Context, opts ScanOptions) (*ExecutionResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultScanConcurrency
	}

	res := &ExecutionResult{
		ExecutionID: uuid.NewString(),
		DryRun:      !opts.Execute,
		StartedAt:   time.Now().UTC(),
	}
	policy := s.evaluator.Policy()
	run := &scanRun{
		scanner:  s,
		opts:     opts,
		res:      res,
		needMeta: policy.NeedsObjectMetadata(),
		auditOn:  opts.Execute && s.audit != nil && policy.AuditEnabled(),
	}
	if max := policy.GlobalSafeguards.MaxDeletionsPerRun; max != nil {
		run.capped = true
		run.deleteCap = int64(*max)
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanScan)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrExecutionID, res.ExecutionID)
	observability.SetSpanAttribute(ctx, observability.AttrProvider, s.provider.Name())

	// Every line this run emits carries the execution ID.
	ctx = logger.ContextWithExecutionID(ctx, res.ExecutionID)
	log := s.log.WithContext(ctx)
	run.log = log

	log.Info("scan started", logger.Fields(
		logger.FieldProvider, s.provider.Name(),
		logger.FieldPrefix, opts.Prefix,
		"execute", opts.Execute,
	))

	err := run.loop(ctx)

	res.FinishedAt = time.Now().UTC()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	if m := scanMetrics(); m != nil {
		m.RecordRun(ctx, s.provider.Name(), res.DryRun,
			res.TotalEvaluated, res.Archived, res.Deleted, res.Blocked, len(res.Errors))
	}

	fields := logger.Fields(
		"evaluated", res.TotalEvaluated,
		"archived", res.Archived,
		"deleted", res.Deleted,
		"blocked", res.Blocked,
		"failures", len(res.Errors),
		logger.FieldDuration, res.Duration.Milliseconds(),
	)
	if err != nil {
		observability.SetSpanError(ctx, err)
		log.Error("scan aborted", logger.MergeWithError(fields, err))
		return res, err
	}
	log.Info("scan finished", fields)
	return res, nil
}

// scanRun is the mutable state of one Run invocation. The deletion
// counter is atomic: it enforces a safety limit across concurrent
// per-object work and must never double-count.
type scanRun struct {
	scanner  *Scanner
	opts     ScanOptions
	res      *ExecutionResult
	log      *logger.Logger
	needMeta bool
	auditOn  bool

	capped    bool
	deleteCap int64
	deletions atomic.Int64

	processed atomic.Int64

	mu sync.Mutex
}

func (r *scanRun) loop(ctx context.Context) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.scanner.provider.ListWithMetadata(ctx, storage.ListOptions{
			Prefix:            r.opts.Prefix,
			MaxResults:        r.opts.PageSize,
			ContinuationToken: token,
		})
		if err != nil {
			return err
		}

		if r.processPage(ctx, page.Objects) {
			return nil
		}
		if !page.IsTruncated {
			return nil
		}
		token = page.ContinuationToken
	}
}

// processPage evaluates one page with bounded concurrency and reports
// whether the MaxFiles cap was reached.
func (r *scanRun) processPage(ctx context.Context, objects []storage.ObjectInfo) bool {
	sem := make(chan struct{}, r.opts.Concurrency)
	var wg sync.WaitGroup
	capped := false
	for _, obj := range objects {
		if r.opts.MaxFiles > 0 && r.processed.Load() >= int64(r.opts.MaxFiles) {
			capped = true
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(obj storage.ObjectInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			r.processObject(ctx, obj)
		}(obj)
	}
	wg.Wait()
	return capped || (r.opts.MaxFiles > 0 && r.processed.Load() >= int64(r.opts.MaxFiles))
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeKept
	outcomeArchived
	outcomeDeleted
	outcomeBlocked
	outcomeFailed
)

func (r *scanRun) processObject(ctx context.Context, obj storage.ObjectInfo) {
	defer r.processed.Add(1)

	file, err := r.scanner.collector.Collect(ctx, obj, r.needMeta, time.Now().UTC())
	if err != nil {
		r.recordError(obj.Key, "collect", err)
		return
	}
	ev := r.scanner.evaluator.Evaluate(file)
	out := r.dispatch(ctx, ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.TotalEvaluated++
	if ev.MatchedRule != nil {
		r.res.Matched++
	}
	switch out {
	case outcomeArchived:
		r.res.Archived++
	case outcomeDeleted:
		r.res.Deleted++
	case outcomeKept:
		r.res.Kept++
	case outcomeBlocked:
		r.res.Blocked++
	}
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(ScanProgress{
			Evaluated: r.res.TotalEvaluated,
			Key:       file.Key,
			Action:    ev.Action,
		})
	}
}

func (r *scanRun) dispatch(ctx context.Context, ev *Evaluation) outcome {
	if ev.SafeguardBlocked {
		intended := ActionDelete
		if ev.MatchedRule != nil {
			intended = ev.MatchedRule.Action
		}
		r.auditEntry(ev, intended, true, ev.SafeguardReason)
		return outcomeBlocked
	}

	switch ev.Action {
	case ActionKeep:
		return outcomeKept
	case ActionDelete:
		return r.dispatchDelete(ctx, ev)
	case ActionArchive:
		return r.dispatchArchive(ctx, ev)
	default:
		return outcomeNone
	}
}

// dispatchDelete consumes a deletion slot before touching storage, so the
// cap holds in dry runs and under concurrency alike. A failed delete does
// not return its slot: the cap bounds attempts, not successes.
func (r *scanRun) dispatchDelete(ctx context.Context, ev *Evaluation) outcome {
	if r.capped && r.deletions.Add(1) > r.deleteCap {
		r.recordError(ev.File.Key, "delete", errors.New(deletionLimitReason))
		r.auditEntry(ev, ActionDelete, true, deletionLimitReason)
		return outcomeBlocked
	}
	if r.opts.Execute {
		if _, err := r.scanner.provider.Delete(ctx, ev.File.Key); err != nil {
			r.recordError(ev.File.Key, "delete", err)
			return outcomeFailed
		}
		r.auditEntry(ev, ActionDelete, false, "")
	}
	return outcomeDeleted
}

func (r *scanRun) dispatchArchive(ctx context.Context, ev *Evaluation) outcome {
	if r.opts.Execute {
		if err := r.scanner.provider.Copy(ctx, ev.File.Key, r.archiveKey(ev)); err != nil {
			r.recordError(ev.File.Key, "archive", err)
			return outcomeFailed
		}
		r.auditEntry(ev, ActionArchive, false, "")
	}
	return outcomeArchived
}

func (r *scanRun) archiveKey(ev *Evaluation) string {
	prefix := util.Coalesce(ev.ActionParams[ArchivePrefixParam], r.scanner.evaluator.Policy().ArchivePrefix)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + ev.File.Key
}

func (r *scanRun) auditEntry(ev *Evaluation, action Action, blocked bool, reason string) {
	if !r.auditOn {
		return
	}
	ruleID := ""
	if ev.MatchedRule != nil {
		ruleID = ev.MatchedRule.ID
	}
	err := r.scanner.audit.Append(audit.Entry{
		FileKey:     ev.File.Key,
		Action:      string(action),
		RuleID:      ruleID,
		Blocked:     blocked,
		BlockReason: reason,
		File:        ev.File.FileMetadata,
		ExecutionID: r.res.ExecutionID,
	})
	if err != nil {
		r.log.Warn("audit append failed", logger.Fields(
			logger.FieldKey, ev.File.Key,
			logger.FieldError, err.Error(),
		))
	}
}

func (r *scanRun) recordError(key, op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.Errors = append(r.res.Errors, FileError{Key: key, Op: op, Message: err.Error()})
}
