// Package migrate copies objects between storage providers and compares
// their contents. Each object moves through head, download, upload and
// optional verify and source-delete stages; a failure in any stage is
// recorded against the key and the run continues. The source object is
// only deleted after its copy verified clean.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/observability"
	"github.com/sean-she/photoflow-storage/storage"
)

// DefaultConcurrency bounds in-flight object copies within a page.
const DefaultConcurrency = 4

// Options control one migration run.
type Options struct {
	// Prefix restricts the migration to keys beginning with it.
	Prefix string

	// MaxFiles softly caps migrated objects, checked per object and at
	// page boundaries.
	MaxFiles int

	// Concurrency bounds in-flight copies within a page (default
	// DefaultConcurrency).
	Concurrency int

	// PageSize overrides the source provider's listing page size.
	PageSize int

	// DeleteSource removes each source object after its copy succeeds,
	// turning the copy into a move.
	DeleteSource bool

	// Verify re-reads the destination object's metadata after upload and
	// checks size, plus ETag when both sides carry single-part tags.
	Verify bool

	// OnProgress, when set, receives a snapshot after every object.
	OnProgress func(Progress)
}

// Progress is a point-in-time view of a running migration.
type Progress struct {
	Copied int
	Failed int
	Key    string
}

// KeyError records one per-object failure and the stage it occurred in.
type KeyError struct {
	Key     string `json:"key"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Result is the aggregate report of one migration run. Delete-stage
// failures leave the object counted as copied, with the error recorded.
type Result struct {
	MigrationID string        `json:"migration_id"`
	Source      string        `json:"source"`
	Dest        string        `json:"dest"`
	Copied      int           `json:"copied"`
	Deleted     int           `json:"deleted"`
	Failed      int           `json:"failed"`
	BytesCopied int64         `json:"bytes_copied"`
	Errors      []KeyError    `json:"errors,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration"`
}

var migrateMetrics = sync.OnceValue(func() *observability.MigrateMetrics {
	m, err := observability.NewMigrateMetrics(observability.Meter("photoflow.migrate"))
	if err != nil {
		return nil
	}
	return m
})

// Run migrates objects under opts.Prefix from source to dest. Per-object
// failures land in the result's error list; a listing failure aborts
// between pages and returns the partial result alongside the error.
func Run(ctx context.Context, source, dest storage.Provider, opts Options) (*Result, error) {
	if source == nil || dest == nil {
		return nil, errors.New("migrate: source and destination providers are required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	res := &Result{
		MigrationID: uuid.NewString(),
		Source:      source.Name(),
		Dest:        dest.Name(),
		StartedAt:   time.Now().UTC(),
	}
	log := logger.GetGlobalLogger().WithComponent("migrate")

	ctx, span := observability.StartSpan(ctx, observability.SpanMigrate)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrExecutionID, res.MigrationID)
	observability.SetSpanAttribute(ctx, "migrate.source", res.Source)
	observability.SetSpanAttribute(ctx, "migrate.dest", res.Dest)

	log.Info("migration started", logger.Fields(
		logger.FieldExecutionID, res.MigrationID,
		"source", res.Source,
		"dest", res.Dest,
		logger.FieldPrefix, opts.Prefix,
		"delete_source", opts.DeleteSource,
		"verify", opts.Verify,
	))

	run := &migration{source: source, dest: dest, opts: opts, res: res, log: log}
	err := run.loop(ctx)

	res.FinishedAt = time.Now().UTC()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	if m := migrateMetrics(); m != nil {
		m.RecordRun(ctx, res.Source, res.Dest, res.Copied, res.Failed, res.BytesCopied)
	}
	observability.SetSpanAttribute(ctx, "migrate.copied", res.Copied)
	observability.SetSpanAttribute(ctx, "migrate.failed", res.Failed)

	fields := logger.Fields(
		logger.FieldExecutionID, res.MigrationID,
		"copied", res.Copied,
		"failed", res.Failed,
		"deleted", res.Deleted,
		logger.FieldBytes, res.BytesCopied,
		logger.FieldDuration, res.Duration.Milliseconds(),
	)
	if err != nil {
		observability.SetSpanError(ctx, err)
		log.Error("migration aborted", logger.MergeWithError(fields, err))
		return res, err
	}
	log.Info("migration finished", fields)
	return res, nil
}

type migration struct {
	source storage.Provider
	dest   storage.Provider
	opts   Options
	res    *Result
	log    *logger.Logger

	processed int

	mu sync.Mutex
}

func (m *migration) loop(ctx context.Context) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := m.source.ListWithMetadata(ctx, storage.ListOptions{
			Prefix:            m.opts.Prefix,
			MaxResults:        m.opts.PageSize,
			ContinuationToken: token,
		})
		if err != nil {
			return err
		}

		if m.processPage(ctx, page.Objects) {
			return nil
		}
		if !page.IsTruncated {
			return nil
		}
		token = page.ContinuationToken
	}
}

// processPage copies one page with bounded concurrency and reports
// whether the MaxFiles cap was reached.
func (m *migration) processPage(ctx context.Context, objects []storage.ObjectInfo) bool {
	sem := make(chan struct{}, m.opts.Concurrency)
	var wg sync.WaitGroup
	launched := 0
	for _, obj := range objects {
		if m.opts.MaxFiles > 0 && m.processed+launched >= m.opts.MaxFiles {
			break
		}
		launched++
		wg.Add(1)
		sem <- struct{}{}
		go func(obj storage.ObjectInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			m.migrateObject(ctx, obj)
		}(obj)
	}
	wg.Wait()
	m.processed += launched
	return m.opts.MaxFiles > 0 && m.processed >= m.opts.MaxFiles
}

func (m *migration) migrateObject(ctx context.Context, obj storage.ObjectInfo) {
	size, err := m.copyObject(ctx, obj)
	if err != nil {
		var ke *keyError
		stage := "copy"
		msg := err.Error()
		if errors.As(err, &ke) {
			stage, msg = ke.stage, ke.err.Error()
		}
		m.mu.Lock()
		m.res.Failed++
		m.res.Errors = append(m.res.Errors, KeyError{Key: obj.Key, Stage: stage, Message: msg})
		m.notify(obj.Key)
		m.mu.Unlock()
		return
	}

	deleted := false
	if m.opts.DeleteSource {
		if _, err := m.source.Delete(ctx, obj.Key); err != nil {
			m.mu.Lock()
			m.res.Errors = append(m.res.Errors, KeyError{Key: obj.Key, Stage: "delete", Message: err.Error()})
			m.mu.Unlock()
		} else {
			deleted = true
		}
	}

	m.mu.Lock()
	m.res.Copied++
	m.res.BytesCopied += size
	if deleted {
		m.res.Deleted++
	}
	m.notify(obj.Key)
	m.mu.Unlock()
}

// notify invokes the progress callback. Callers hold mu.
func (m *migration) notify(key string) {
	if m.opts.OnProgress != nil {
		m.opts.OnProgress(Progress{Copied: m.res.Copied, Failed: m.res.Failed, Key: key})
	}
}

// keyError tags a stage onto an underlying failure.
type keyError struct {
	stage string
	err   error
}

func (e *keyError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *keyError) Unwrap() error { return e.err }

func stageErr(stage string, err error) error {
	return &keyError{stage: stage, err: err}
}

// copyObject moves one object through head, download, upload and verify.
func (m *migration) copyObject(ctx context.Context, obj storage.ObjectInfo) (int64, error) {
	meta, err := m.source.Metadata(ctx, obj.Key)
	if err != nil {
		return 0, stageErr("head", err)
	}

	body, err := m.source.Download(ctx, obj.Key, nil)
	if err != nil {
		return 0, stageErr("download", err)
	}
	defer body.Close()

	up, err := m.dest.Upload(ctx, obj.Key, body, &storage.UploadOptions{
		ContentType: meta.ContentType,
		Metadata:    meta.Custom,
	})
	if err != nil {
		return 0, stageErr("upload", err)
	}

	if m.opts.Verify {
		if err := m.verify(ctx, meta); err != nil {
			return 0, stageErr("verify", err)
		}
	}
	return up.Size, nil
}

// verify re-reads the destination copy and compares it to the source
// snapshot: size always, ETag only when both tags are single-part (a
// multipart tag depends on part boundaries and is not comparable).
func (m *migration) verify(ctx context.Context, src *storage.FileMetadata) error {
	got, err := m.dest.Metadata(ctx, src.Key)
	if err != nil {
		return err
	}
	if got.Size != src.Size {
		return fmt.Errorf("size mismatch: source %d, dest %d", src.Size, got.Size)
	}
	if src.ETag != "" && got.ETag != "" &&
		!strings.Contains(src.ETag, "-") && !strings.Contains(got.ETag, "-") &&
		src.ETag != got.ETag {
		return fmt.Errorf("etag mismatch: source %s, dest %s", src.ETag, got.ETag)
	}
	return nil
}
