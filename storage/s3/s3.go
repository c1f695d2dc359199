// Package s3 provides the Amazon S3 storage provider, also covering
// S3-compatible services such as MinIO through a custom endpoint.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/resilience"
	"github.com/sean-she/photoflow-storage/storage"
)

func init() {
	storage.RegisterFactory(storage.ProviderS3, func(ctx context.Context, cfg storage.Config, log *logger.Logger) (storage.Provider, error) {
		return New(ctx, cfg, log)
	})
}

// maxDeleteBatch is the S3 DeleteObjects per-request limit.
const maxDeleteBatch = 1000

// s3API is the slice of the S3 client the store uses. Tests substitute a
// fake; manager drives multipart transfers through the same interface.
type s3API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, opts ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *awss3.DeleteObjectsInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, opts ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	CopyObject(ctx context.Context, in *awss3.CopyObjectInput, opts ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
}

type presignFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)

// Store is an S3-backed storage provider.
type Store struct {
	api        s3API
	presign    presignFunc
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	cfg        storage.Config
	log        *logger.Logger
}

// New builds an S3 store from the configuration, using the default AWS
// credential chain unless static keys are configured.
func New(ctx context.Context, cfg storage.Config, log *logger.Logger) (*Store, error) {
	cfg.ApplyDefaults()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		// Custom endpoints (MinIO and friends) need path-style addressing.
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	client := awss3.NewFromConfig(awsCfg, s3Opts...)
	pc := awss3.NewPresignClient(client)
	presign := func(ctx context.Context, key string, ttl time.Duration) (string, error) {
		out, err := pc.PresignGetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(key),
		}, awss3.WithPresignExpires(ttl))
		if err != nil {
			return "", classify("sign", key, err)
		}
		return out.URL, nil
	}

	return newWithAPI(client, presign, cfg, log), nil
}

func newWithAPI(api s3API, presign presignFunc, cfg storage.Config, log *logger.Logger) *Store {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	s := &Store{
		api:     api,
		presign: presign,
		bucket:  cfg.Bucket,
		cfg:     cfg,
		log:     log.WithComponent("storage.s3"),
	}
	part := cfg.PartSizeBytes()
	s.uploader = manager.NewUploader(api, func(u *manager.Uploader) {
		u.PartSize = part
		u.Concurrency = cfg.BatchConcurrency
	})
	s.downloader = manager.NewDownloader(api, func(d *manager.Downloader) {
		d.PartSize = part
		d.Concurrency = cfg.BatchConcurrency
	})
	return s
}

// Name identifies the backend.
func (s *Store) Name() string { return storage.ProviderS3 }

// retryDo runs fn with backoff on transient failures. Errors come back
// classified.
func retryDo[T any](ctx context.Context, s *Store, op, key string, fn func() (T, error)) (T, error) {
	return resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts:    s.cfg.RetryAttempts,
		InitialBackoff: s.cfg.RetryBackoff,
		BackoffFactor:  2,
		RetryIf:        storage.IsTransient,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			s.log.Warn("transient storage failure, retrying",
				logger.Fields(
					logger.FieldOperation, op,
					logger.FieldKey, key,
					"attempt", attempt,
					"backoff", backoff.String(),
					logger.FieldError, err.Error(),
				))
		},
	}, func() (T, error) {
		v, err := fn()
		if err != nil {
			var zero T
			return zero, classify(op, key, err)
		}
		return v, nil
	})
}

// Upload stores content under key. Bodies larger than the multipart
// threshold go up in parts; the transfer manager retries individual
// parts internally, so the call is not wrapped in the outer retry (a
// consumed stream cannot be replayed).
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, opts *storage.UploadOptions) (*storage.UploadResult, error) {
	if key == "" {
		return nil, storage.TerminalError("upload", key, errors.New("empty key"))
	}

	cr := &countingReader{r: storage.CapReader(body, s.cfg.MaxFileSize, "upload", key)}
	contentType := detectContentType(key, opts)

	in := &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        cr,
		ContentType: aws.String(contentType),
	}
	if opts != nil {
		if len(opts.Metadata) > 0 {
			in.Metadata = opts.Metadata
		}
		if opts.CacheControl != "" {
			in.CacheControl = aws.String(opts.CacheControl)
		}
	}

	out, err := s.uploader.Upload(ctx, in)
	if err != nil {
		var se *storage.Error
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, classify("upload", key, err)
	}

	return &storage.UploadResult{
		Key:         key,
		ETag:        trimETag(aws.ToString(out.ETag)),
		Size:        cr.n,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

// UploadBatch uploads items with bounded concurrency.
func (s *Store) UploadBatch(ctx context.Context, items []storage.UploadItem, defaults *storage.UploadOptions) (*storage.BatchResult, error) {
	return storage.UploadEach(ctx, s, s.cfg.BatchConcurrency, items, defaults)
}

// Download returns a reader over the object's content. Only the initial
// request is retried; a failure mid-stream surfaces to the caller.
func (s *Store) Download(ctx context.Context, key string, opts *storage.DownloadOptions) (io.ReadCloser, error) {
	in := &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if opts != nil && opts.Range != nil {
		header, err := rangeHeader(opts.Range)
		if err != nil {
			return nil, storage.TerminalError("download", key, err)
		}
		in.Range = aws.String(header)
	}

	out, err := retryDo(ctx, s, "download", key, func() (*awss3.GetObjectOutput, error) {
		return s.api.GetObject(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// DownloadBuffer reads the whole object into memory using ranged
// parallel requests.
func (s *Store) DownloadBuffer(ctx context.Context, key string) ([]byte, error) {
	buf, err := retryDo(ctx, s, "download", key, func() (*manager.WriteAtBuffer, error) {
		w := manager.NewWriteAtBuffer(nil)
		_, err := s.downloader.Download(ctx, w, &awss3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return w, err
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadWithProgress reads the whole object, reporting progress.
func (s *Store) DownloadWithProgress(ctx context.Context, key string, fn storage.ProgressFunc) ([]byte, error) {
	total := int64(-1)
	if meta, err := s.Metadata(ctx, key); err == nil {
		total = meta.Size
	} else if storage.IsNotFound(err) {
		return nil, err
	}

	rc, err := s.Download(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return storage.ReadAllWithProgress(rc, total, fn)
}

// Metadata returns the object's metadata via HeadObject.
func (s *Store) Metadata(ctx context.Context, key string) (*storage.FileMetadata, error) {
	out, err := retryDo(ctx, s, "metadata", key, func() (*awss3.HeadObjectOutput, error) {
		return s.api.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		return nil, err
	}

	return &storage.FileMetadata{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         trimETag(aws.ToString(out.ETag)),
		LastModified: aws.ToTime(out.LastModified),
		Custom:       out.Metadata,
	}, nil
}

// Exists reports whether key refers to a stored object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Metadata(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the object and reports whether it existed. S3 deletes
// are silent about prior existence, so presence is checked first.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	existed, err := s.Exists(ctx, key)
	if err != nil {
		return false, err
	}

	_, err = retryDo(ctx, s, "delete", key, func() (*awss3.DeleteObjectOutput, error) {
		return s.api.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// DeleteBatch removes keys with the native bulk call, in chunks of up to
// 1000 keys. Per-key failures reported by the backend are collected.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (*storage.DeleteBatchResult, error) {
	res := &storage.DeleteBatchResult{}
	for start := 0; start < len(keys); start += maxDeleteBatch {
		chunk := keys[start:min(start+maxDeleteBatch, len(keys))]

		ids := make([]types.ObjectIdentifier, len(chunk))
		for i, k := range chunk {
			ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}

		out, err := retryDo(ctx, s, "delete", "", func() (*awss3.DeleteObjectsOutput, error) {
			return s.api.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
		})
		if err != nil {
			for _, k := range chunk {
				res.Failed = append(res.Failed, storage.BatchError{Key: k, Err: err})
			}
			continue
		}

		failed := make(map[string]storage.BatchError, len(out.Errors))
		for _, e := range out.Errors {
			k := aws.ToString(e.Key)
			failed[k] = storage.BatchError{
				Key: k,
				Err: storage.NewError(kindForCode(aws.ToString(e.Code)), "delete", k, aws.ToString(e.Message), nil),
			}
		}
		for _, k := range chunk {
			if be, ok := failed[k]; ok {
				res.Failed = append(res.Failed, be)
				continue
			}
			res.Deleted = append(res.Deleted, k)
		}
	}
	return res, nil
}

// List returns one page of keys matching opts.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.ListResult, error) {
	out, err := s.listPage(ctx, opts)
	if err != nil {
		return nil, err
	}

	res := &storage.ListResult{
		ContinuationToken: aws.ToString(out.NextContinuationToken),
		IsTruncated:       aws.ToBool(out.IsTruncated),
	}
	for _, obj := range out.Contents {
		res.Keys = append(res.Keys, aws.ToString(obj.Key))
	}
	return res, nil
}

// ListWithMetadata returns one page of objects with metadata.
func (s *Store) ListWithMetadata(ctx context.Context, opts storage.ListOptions) (*storage.ListMetadataResult, error) {
	out, err := s.listPage(ctx, opts)
	if err != nil {
		return nil, err
	}

	res := &storage.ListMetadataResult{
		ContinuationToken: aws.ToString(out.NextContinuationToken),
		IsTruncated:       aws.ToBool(out.IsTruncated),
	}
	for _, obj := range out.Contents {
		res.Objects = append(res.Objects, storage.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         trimETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return res, nil
}

func (s *Store) listPage(ctx context.Context, opts storage.ListOptions) (*awss3.ListObjectsV2Output, error) {
	in := &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if opts.Prefix != "" {
		in.Prefix = aws.String(opts.Prefix)
	}
	if opts.MaxResults > 0 {
		in.MaxKeys = aws.Int32(int32(opts.MaxResults))
	}
	if opts.ContinuationToken != "" {
		in.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	return retryDo(ctx, s, "list", opts.Prefix, func() (*awss3.ListObjectsV2Output, error) {
		return s.api.ListObjectsV2(ctx, in)
	})
}

// Copy duplicates srcKey to dstKey within the bucket.
func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	source := url.PathEscape(s.bucket + "/" + srcKey)
	_, err := retryDo(ctx, s, "copy", srcKey, func() (*awss3.CopyObjectOutput, error) {
		return s.api.CopyObject(ctx, &awss3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(source),
		})
	})
	return err
}

// PublicURL returns the object's public URL: the configured base, the
// custom endpoint in path style, or the bucket's virtual-hosted AWS URL.
func (s *Store) PublicURL(key string) string {
	k := storage.EscapeKey(key)
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + k
	case s.cfg.Endpoint != "":
		return strings.TrimSuffix(s.cfg.Endpoint, "/") + "/" + s.bucket + "/" + k
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.cfg.Region, k)
	}
}

// SignedURL returns a presigned GET URL valid for ttl.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.presign == nil {
		return "", storage.TerminalError("sign", key, errors.New("presigning unavailable"))
	}
	return s.presign(ctx, key, ttl)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// rangeHeader renders a half-open byte range as an HTTP Range value.
func rangeHeader(r *storage.ByteRange) (string, error) {
	if r.Start < 0 {
		return "", fmt.Errorf("negative range start %d", r.Start)
	}
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start), nil
	}
	if r.End <= r.Start {
		return "", fmt.Errorf("range end %d not after start %d", r.End, r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1), nil
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func detectContentType(key string, opts *storage.UploadOptions) string {
	if opts != nil && opts.ContentType != "" {
		return opts.ContentType
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// transientCodes are S3 error codes worth retrying.
var transientCodes = map[string]bool{
	"SlowDown":             true,
	"RequestTimeout":       true,
	"Throttling":           true,
	"ThrottlingException":  true,
	"RequestLimitExceeded": true,
	"InternalError":        true,
	"ServiceUnavailable":   true,
}

func kindForCode(code string) storage.ErrorKind {
	switch {
	case code == "NoSuchKey" || code == "NotFound":
		return storage.KindNotFound
	case transientCodes[code]:
		return storage.KindTransient
	default:
		return storage.KindTerminal
	}
}

// classify maps SDK and transport errors onto the storage error taxonomy.
// Context cancellation passes through untouched.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return storage.NotFoundError(op, key)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch kindForCode(apiErr.ErrorCode()) {
		case storage.KindNotFound:
			return storage.NotFoundError(op, key)
		case storage.KindTransient:
			return storage.TransientError(op, key, err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return storage.TransientError(op, key, err)
		}
		return storage.TerminalError(op, key, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return storage.TransientError(op, key, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return storage.TransientError(op, key, err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return storage.TransientError(op, key, err)
	}

	return storage.TerminalError(op, key, err)
}

// Interface conformance.
var (
	_ storage.Provider  = (*Store)(nil)
	_ storage.Presigner = (*Store)(nil)
)
