// Package memory provides an in-memory storage provider. It reproduces
// the externally observable provider contract, including unified errors
// on missing keys, cursor pagination and unquoted ETags, so tests can
// swap it in for a real backend. Fault injection lets tests drive retry
// and partial-failure paths deterministically.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/storage"
)

func init() {
	storage.RegisterFactory(storage.ProviderMemory, func(_ context.Context, cfg storage.Config, log *logger.Logger) (storage.Provider, error) {
		return New(cfg, log), nil
	})
}

// defaultPageSize caps List pages when the caller does not set MaxResults.
const defaultPageSize = 1000

type object struct {
	data []byte
	meta storage.FileMetadata
}

// Store is an in-memory storage provider.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object

	cfg storage.Config
	log *logger.Logger

	faultMu sync.Mutex
	faults  map[string][]error
	calls   map[string]int
}

// New creates an empty in-memory store.
func New(cfg storage.Config, log *logger.Logger) *Store {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Store{
		objects: make(map[string]object),
		cfg:     cfg,
		log:     log.WithComponent("storage.memory"),
		faults:  make(map[string][]error),
		calls:   make(map[string]int),
	}
}

// Name identifies the backend.
func (s *Store) Name() string { return storage.ProviderMemory }

// FailNext queues err to be returned by the next call to op. Calling it
// repeatedly queues further failures, so two FailNext("upload", err)
// calls fail the next two uploads. The operation names match Provider
// method semantics: upload, download, metadata, exists, delete, list,
// copy, sign.
func (s *Store) FailNext(op string, err error) {
	s.faultMu.Lock()
	s.faults[op] = append(s.faults[op], err)
	s.faultMu.Unlock()
}

// CallCount reports how many times op has been invoked, including calls
// that consumed an injected fault.
func (s *Store) CallCount(op string) int {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.calls[op]
}

// Len reports the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Seed stores an object directly, bypassing Upload and fault injection.
// Tests use it to stage objects with controlled timestamps and metadata.
func (s *Store) Seed(key string, data []byte, lastModified time.Time, custom map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{
		data: append([]byte(nil), data...),
		meta: storage.FileMetadata{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  detectContentType(key, ""),
			ETag:         contentETag(data),
			LastModified: lastModified,
			Custom:       copyMap(custom),
		},
	}
}

// enter records a call and pops an injected fault for op, if any.
func (s *Store) enter(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.calls[op]++
	q := s.faults[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	s.faults[op] = q[1:]
	return err
}

// Upload stores content under key.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, opts *storage.UploadOptions) (*storage.UploadResult, error) {
	if err := s.enter("upload"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, storage.TerminalError("upload", key, fmt.Errorf("empty key"))
	}

	data, err := io.ReadAll(storage.CapReader(body, s.cfg.MaxFileSize, "upload", key))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	meta := storage.FileMetadata{
		Key:          key,
		Size:         int64(len(data)),
		LastModified: now,
		ETag:         contentETag(data),
	}
	if opts != nil {
		meta.ContentType = opts.ContentType
		meta.Custom = copyMap(opts.Metadata)
	}
	if meta.ContentType == "" {
		meta.ContentType = detectContentType(key, "")
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, meta: meta}
	s.mu.Unlock()

	return &storage.UploadResult{
		Key:         key,
		ETag:        meta.ETag,
		Size:        meta.Size,
		ContentType: meta.ContentType,
		UploadedAt:  now,
	}, nil
}

// UploadBatch uploads items with bounded concurrency.
func (s *Store) UploadBatch(ctx context.Context, items []storage.UploadItem, defaults *storage.UploadOptions) (*storage.BatchResult, error) {
	return storage.UploadEach(ctx, s, s.cfg.BatchConcurrency, items, defaults)
}

// Download returns a reader over the object's content.
func (s *Store) Download(ctx context.Context, key string, opts *storage.DownloadOptions) (io.ReadCloser, error) {
	if err := s.enter("download"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.NotFoundError("download", key)
	}

	data := obj.data
	if opts != nil && opts.Range != nil {
		var err error
		data, err = sliceRange(data, opts.Range)
		if err != nil {
			return nil, storage.TerminalError("download", key, err)
		}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// DownloadBuffer reads the whole object into memory.
func (s *Store) DownloadBuffer(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.Download(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// DownloadWithProgress reads the whole object, reporting progress.
func (s *Store) DownloadWithProgress(ctx context.Context, key string, fn storage.ProgressFunc) ([]byte, error) {
	s.mu.RLock()
	total := int64(-1)
	if obj, ok := s.objects[key]; ok {
		total = obj.meta.Size
	}
	s.mu.RUnlock()

	rc, err := s.Download(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return storage.ReadAllWithProgress(rc, total, fn)
}

// Metadata returns the object's metadata.
func (s *Store) Metadata(ctx context.Context, key string) (*storage.FileMetadata, error) {
	if err := s.enter("metadata"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.NotFoundError("metadata", key)
	}

	meta := obj.meta
	meta.Custom = copyMap(obj.meta.Custom)
	return &meta, nil
}

// Exists reports whether key refers to a stored object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.enter("exists"); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	return ok, nil
}

// Delete removes the object and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := s.enter("delete"); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	_, ok := s.objects[key]
	delete(s.objects, key)
	s.mu.Unlock()
	return ok, nil
}

// DeleteBatch removes keys with bounded concurrency.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (*storage.DeleteBatchResult, error) {
	return storage.DeleteEach(ctx, s, s.cfg.BatchConcurrency, keys)
}

// List returns one page of keys matching opts.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.ListResult, error) {
	page, err := s.listPage(ctx, opts)
	if err != nil {
		return nil, err
	}
	res := &storage.ListResult{
		ContinuationToken: page.ContinuationToken,
		IsTruncated:       page.IsTruncated,
	}
	for _, o := range page.Objects {
		res.Keys = append(res.Keys, o.Key)
	}
	return res, nil
}

// ListWithMetadata returns one page of objects with metadata.
func (s *Store) ListWithMetadata(ctx context.Context, opts storage.ListOptions) (*storage.ListMetadataResult, error) {
	return s.listPage(ctx, opts)
}

func (s *Store) listPage(ctx context.Context, opts storage.ListOptions) (*storage.ListMetadataResult, error) {
	if err := s.enter("list"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// The token is the last key of the previous page; resume after it.
	start := 0
	if opts.ContinuationToken != "" {
		start = sort.SearchStrings(keys, opts.ContinuationToken)
		if start < len(keys) && keys[start] == opts.ContinuationToken {
			start++
		}
	}

	limit := opts.MaxResults
	if limit <= 0 {
		limit = defaultPageSize
	}

	res := &storage.ListMetadataResult{}
	for i := start; i < len(keys); i++ {
		if len(res.Objects) == limit {
			res.IsTruncated = true
			res.ContinuationToken = keys[i-1]
			break
		}
		obj := s.objects[keys[i]]
		res.Objects = append(res.Objects, storage.ObjectInfo{
			Key:          obj.meta.Key,
			Size:         obj.meta.Size,
			ETag:         obj.meta.ETag,
			LastModified: obj.meta.LastModified,
		})
	}
	s.mu.RUnlock()
	return res, nil
}

// Copy duplicates srcKey to dstKey.
func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := s.enter("copy"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.objects[srcKey]
	if !ok {
		return storage.NotFoundError("copy", srcKey)
	}

	meta := src.meta
	meta.Key = dstKey
	meta.LastModified = time.Now().UTC()
	meta.Custom = copyMap(src.meta.Custom)
	s.objects[dstKey] = object{
		data: append([]byte(nil), src.data...),
		meta: meta,
	}
	return nil
}

// PublicURL returns a stable fake URL for the object.
func (s *Store) PublicURL(key string) string {
	base := s.cfg.PublicBaseURL
	if base == "" {
		base = "https://memory.invalid"
	}
	return strings.TrimSuffix(base, "/") + "/" + storage.EscapeKey(key)
}

// SignedURL returns a deterministic fake presigned URL so CDN code paths
// can be exercised without a real backend.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := s.enter("sign"); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	expires := time.Now().UTC().Add(ttl).Unix()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", key, expires)))
	q := url.Values{}
	q.Set("X-Expires", fmt.Sprintf("%d", expires))
	q.Set("X-Signature", hex.EncodeToString(sum[:8]))
	return s.PublicURL(key) + "?" + q.Encode(), nil
}

func sliceRange(data []byte, r *storage.ByteRange) ([]byte, error) {
	size := int64(len(data))
	if r.Start < 0 || r.Start > size {
		return nil, fmt.Errorf("range start %d outside object of %d bytes", r.Start, size)
	}
	end := r.End
	if end < 0 || end > size {
		end = size
	}
	if end < r.Start {
		return nil, fmt.Errorf("range end %d before start %d", r.End, r.Start)
	}
	return data[r.Start:end], nil
}

// contentETag mirrors the fingerprint a single-part S3 upload produces,
// already unquoted.
func contentETag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func detectContentType(key, fallback string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	if fallback != "" {
		return fallback
	}
	return "application/octet-stream"
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Interface conformance.
var (
	_ storage.Provider  = (*Store)(nil)
	_ storage.Presigner = (*Store)(nil)
)
