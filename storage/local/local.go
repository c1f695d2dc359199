// Package local provides a filesystem-backed storage provider, intended
// for development and single-node deployments. Object attributes that a
// filesystem cannot represent (content type, custom metadata, ETag) live
// in JSON sidecars under a .meta mirror of the content tree.
package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/storage"
)

func init() {
	storage.RegisterFactory(storage.ProviderLocal, func(_ context.Context, cfg storage.Config, log *logger.Logger) (storage.Provider, error) {
		return New(cfg, log)
	})
}

// metaDir holds metadata sidecars, mirroring the content tree.
const metaDir = ".meta"

// defaultPageSize caps List pages when the caller does not set MaxResults.
const defaultPageSize = 1000

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	ETag        string            `json:"etag,omitempty"`
	Custom      map[string]string `json:"custom,omitempty"`
}

// Store is a filesystem storage provider rooted at a base directory.
type Store struct {
	basePath string
	cfg      storage.Config
	log      *logger.Logger
}

// New creates a filesystem store rooted at cfg.BasePath, creating the
// directory if needed.
func New(cfg storage.Config, log *logger.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("local: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("local: create base directory: %w", err)
	}
	return &Store{
		basePath: abs,
		cfg:      cfg,
		log:      log.WithComponent("storage.local"),
	}, nil
}

// Name identifies the backend.
func (s *Store) Name() string { return storage.ProviderLocal }

// contentPath maps an object key onto the filesystem, rejecting keys
// that would escape the base directory or collide with the meta tree.
func (s *Store) contentPath(op, key string) (string, error) {
	if key == "" {
		return "", storage.TerminalError(op, key, errors.New("empty key"))
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "" || seg == "." {
			return "", storage.TerminalError(op, key, fmt.Errorf("invalid key segment %q", seg))
		}
	}
	if strings.HasPrefix(key, metaDir+"/") || key == metaDir {
		return "", storage.TerminalError(op, key, errors.New("key collides with metadata tree"))
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

func (s *Store) sidecarPath(key string) string {
	return filepath.Join(s.basePath, metaDir, filepath.FromSlash(key)+".json")
}

func (s *Store) writeSidecar(key string, sc sidecar) error {
	p := s.sidecarPath(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o640)
}

func (s *Store) readSidecar(key string) (sidecar, bool) {
	data, err := os.ReadFile(s.sidecarPath(key))
	if err != nil {
		return sidecar{}, false
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return sidecar{}, false
	}
	return sc, true
}

// Upload writes content under key, replacing any existing object. The
// write goes to a temporary file first so readers never observe a
// partially written object.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, opts *storage.UploadOptions) (*storage.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.contentPath("upload", key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, storage.TerminalError("upload", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, storage.TerminalError("upload", key, err)
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), storage.CapReader(body, s.cfg.MaxFileSize, "upload", key))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return nil, storage.TerminalError("upload", key, err)
	}

	etag := hex.EncodeToString(hash.Sum(nil))
	sc := sidecar{ETag: etag}
	if opts != nil {
		sc.ContentType = opts.ContentType
		sc.Custom = opts.Metadata
	}
	if sc.ContentType == "" {
		sc.ContentType = detectContentType(key)
	}
	if err := s.writeSidecar(key, sc); err != nil {
		s.log.Warn("sidecar write failed", logger.Fields(logger.FieldKey, key, logger.FieldError, err.Error()))
	}

	return &storage.UploadResult{
		Key:         key,
		ETag:        etag,
		Size:        n,
		ContentType: sc.ContentType,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

// UploadBatch uploads items with bounded concurrency.
func (s *Store) UploadBatch(ctx context.Context, items []storage.UploadItem, defaults *storage.UploadOptions) (*storage.BatchResult, error) {
	return storage.UploadEach(ctx, s, s.cfg.BatchConcurrency, items, defaults)
}

// Download returns a reader over the object's content.
func (s *Store) Download(ctx context.Context, key string, opts *storage.DownloadOptions) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.contentPath("download", key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NotFoundError("download", key)
		}
		return nil, storage.TerminalError("download", key, err)
	}

	if opts == nil || opts.Range == nil {
		return f, nil
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, storage.TerminalError("download", key, err)
	}
	start, length, err := resolveRange(opts.Range, info.Size())
	if err != nil {
		f.Close()
		return nil, storage.TerminalError("download", key, err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, storage.TerminalError("download", key, err)
	}
	return &sectionReadCloser{Reader: io.LimitReader(f, length), f: f}, nil
}

type sectionReadCloser struct {
	io.Reader
	f *os.File
}

func (s *sectionReadCloser) Close() error { return s.f.Close() }

func resolveRange(r *storage.ByteRange, size int64) (start, length int64, err error) {
	if r.Start < 0 || r.Start > size {
		return 0, 0, fmt.Errorf("range start %d outside object of %d bytes", r.Start, size)
	}
	end := r.End
	if end < 0 || end > size {
		end = size
	}
	if end < r.Start {
		return 0, 0, fmt.Errorf("range end %d before start %d", r.End, r.Start)
	}
	return r.Start, end - r.Start, nil
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
	full, err := s.contentPath("download", key)
	if err != nil {
		return nil, err
	}
	total := int64(-1)
	if info, err := os.Stat(full); err == nil {
		total = info.Size()
	}

	rc, err := s.Download(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return storage.ReadAllWithProgress(rc, total, fn)
}

// Metadata returns the object's metadata. For files placed in the tree
// outside this provider the ETag is computed from content on demand.
func (s *Store) Metadata(ctx context.Context, key string) (*storage.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.contentPath("metadata", key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NotFoundError("metadata", key)
		}
		return nil, storage.TerminalError("metadata", key, err)
	}
	if info.IsDir() {
		return nil, storage.NotFoundError("metadata", key)
	}

	meta := &storage.FileMetadata{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}
	if sc, ok := s.readSidecar(key); ok {
		meta.ContentType = sc.ContentType
		meta.ETag = sc.ETag
		meta.Custom = sc.Custom
	}
	if meta.ContentType == "" {
		meta.ContentType = detectContentType(key)
	}
	if meta.ETag == "" {
		if etag, err := fileETag(full); err == nil {
			meta.ETag = etag
		}
	}
	return meta, nil
}

func fileETag(full string) (string, error) {
	f, err := os.Open(full)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Exists reports whether key refers to a stored object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.contentPath("exists", key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, storage.TerminalError("exists", key, err)
	}
	return !info.IsDir(), nil
}

// Delete removes the object and its sidecar, reporting whether the
// object existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.contentPath("delete", key)
	if err != nil {
		return false, err
	}

	err = os.Remove(full)
	existed := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false, storage.TerminalError("delete", key, err)
	}
	os.Remove(s.sidecarPath(key))
	return existed, nil
}

// DeleteBatch removes keys with bounded concurrency.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (*storage.DeleteBatchResult, error) {
	return storage.DeleteEach(ctx, s, s.cfg.BatchConcurrency, keys)
}

// List returns one page of keys matching opts.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.ListResult, error) {
	keys, err := s.allKeys(ctx, opts.Prefix)
	if err != nil {
		return nil, err
	}
	page, token, truncated := paginate(keys, opts)
	return &storage.ListResult{Keys: page, ContinuationToken: token, IsTruncated: truncated}, nil
}

// ListWithMetadata returns one page of objects with metadata. ETags come
// from sidecars; files placed outside this provider list without one.
func (s *Store) ListWithMetadata(ctx context.Context, opts storage.ListOptions) (*storage.ListMetadataResult, error) {
	keys, err := s.allKeys(ctx, opts.Prefix)
	if err != nil {
		return nil, err
	}
	page, token, truncated := paginate(keys, opts)

	res := &storage.ListMetadataResult{ContinuationToken: token, IsTruncated: truncated}
	for _, key := range page {
		full := filepath.Join(s.basePath, filepath.FromSlash(key))
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		obj := storage.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		}
		if sc, ok := s.readSidecar(key); ok {
			obj.ETag = sc.ETag
		}
		res.Objects = append(res.Objects, obj)
	}
	return res, nil
}

func (s *Store) allKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == metaDir && filepath.Dir(p) == s.basePath {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, storage.TerminalError("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func paginate(keys []string, opts storage.ListOptions) (page []string, token string, truncated bool) {
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
	end := start + limit
	if end >= len(keys) {
		return keys[start:], "", false
	}
	return keys[start:end], keys[end-1], true
}

// Copy duplicates srcKey to dstKey, sidecar included.
func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := s.contentPath("copy", srcKey)
	if err != nil {
		return err
	}
	dst, err := s.contentPath("copy", dstKey)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.NotFoundError("copy", srcKey)
		}
		return storage.TerminalError("copy", srcKey, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return storage.TerminalError("copy", dstKey, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return storage.TerminalError("copy", dstKey, err)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return storage.TerminalError("copy", dstKey, err)
	}

	if sc, ok := s.readSidecar(srcKey); ok {
		if err := s.writeSidecar(dstKey, sc); err != nil {
			s.log.Warn("sidecar copy failed", logger.Fields(logger.FieldKey, dstKey, logger.FieldError, err.Error()))
		}
	}
	return nil
}

// PublicURL returns the configured public base joined with the key, or a
// file URL when no base is configured.
func (s *Store) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + storage.EscapeKey(key)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.basePath, filepath.FromSlash(key)))}
	return u.String()
}

func detectContentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// compile-time check
var _ storage.Provider = (*Store)(nil)
