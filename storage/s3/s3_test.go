package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sean-she/photoflow-storage/storage"
)

// fakeS3 implements s3API over an in-memory object map, close enough to
// the real service to drive the transfer manager: quoted ETags, ranged
// GetObject responses with Content-Range, multipart assembly and
// DeleteObjects error entries.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObj
	multi   map[string]map[int32][]byte
	nextID  int
	faults  map[string][]error
	calls   map[string]int
}

type fakeObj struct {
	data        []byte
	contentType string
	meta        map[string]string
	modified    time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string]fakeObj),
		multi:   make(map[string]map[int32][]byte),
		faults:  make(map[string][]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeS3) failNext(op string, err error) {
	f.mu.Lock()
	f.faults[op] = append(f.faults[op], err)
	f.mu.Unlock()
}

// enter must be called with f.mu held.
func (f *fakeS3) enter(op string) error {
	f.calls[op]++
	q := f.faults[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	f.faults[op] = q[1:]
	return err
}

func (f *fakeS3) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func quotedETag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (f *fakeS3) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutObject"); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = fakeObj{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		meta:        in.Metadata,
		modified:    time.Now().UTC(),
	}
	return &awss3.PutObjectOutput{ETag: aws.String(quotedETag(data))}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *awss3.CreateMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateMultipartUpload"); err != nil {
		return nil, err
	}
	f.nextID++
	id := "mu-" + strconv.Itoa(f.nextID)
	f.multi[id] = make(map[int32][]byte)
	return &awss3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *awss3.UploadPartInput, _ ...func(*awss3.Options)) (*awss3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UploadPart"); err != nil {
		return nil, err
	}
	parts, ok := f.multi[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	parts[aws.ToInt32(in.PartNumber)] = data
	return &awss3.UploadPartOutput{ETag: aws.String(quotedETag(data))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *awss3.CompleteMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CompleteMultipartUpload"); err != nil {
		return nil, err
	}
	id := aws.ToString(in.UploadId)
	parts, ok := f.multi[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	nums := make([]int32, 0, len(parts))
	for n := range parts {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })

	var data []byte
	for _, n := range nums {
		data = append(data, parts[n]...)
	}
	delete(f.multi, id)

	f.objects[aws.ToString(in.Key)] = fakeObj{data: data, modified: time.Now().UTC()}
	etag := fmt.Sprintf(`"%s-%d"`, hex.EncodeToString(md5.New().Sum(nil)), len(nums))
	return &awss3.CompleteMultipartUploadOutput{ETag: aws.String(etag)}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *awss3.AbortMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.multi, aws.ToString(in.UploadId))
	return &awss3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetObject"); err != nil {
		return nil, err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	data := obj.data
	size := int64(len(data))
	out := &awss3.GetObjectOutput{
		ETag:         aws.String(quotedETag(obj.data)),
		LastModified: aws.Time(obj.modified),
	}
	if r := aws.ToString(in.Range); r != "" {
		start, end, err := parseRangeHeader(r, size)
		if err != nil {
			return nil, &smithy.GenericAPIError{Code: "InvalidRange", Message: err.Error()}
		}
		data = data[start : end+1]
		out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	}
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.ContentLength = aws.Int64(int64(len(data)))
	return out, nil
}

func parseRangeHeader(r string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(r, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("bad range %q", r)
	}
	lo, hi, _ := strings.Cut(spec, "-")
	start, err = strconv.ParseInt(lo, 10, 64)
	if err != nil || start >= size {
		return 0, 0, fmt.Errorf("bad range start %q", lo)
	}
	if hi == "" {
		return start, size - 1, nil
	}
	end, err = strconv.ParseInt(hi, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range end %q", hi)
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HeadObject"); err != nil {
		return nil, err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &awss3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(quotedETag(obj.data)),
		LastModified:  aws.Time(obj.modified),
		Metadata:      obj.meta,
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteObject"); err != nil {
		return nil, err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *awss3.DeleteObjectsInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteObjects"); err != nil {
		return nil, err
	}
	out := &awss3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		key := aws.ToString(id.Key)
		if strings.HasPrefix(key, "locked/") {
			out.Errors = append(out.Errors, types.Error{
				Key:     aws.String(key),
				Code:    aws.String("AccessDenied"),
				Message: aws.String("access denied"),
			})
			continue
		}
		delete(f.objects, key)
		out.Deleted = append(out.Deleted, types.DeletedObject{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListObjectsV2"); err != nil {
		return nil, err
	}

	prefix := aws.ToString(in.Prefix)
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start = sort.SearchStrings(keys, tok)
		if start < len(keys) && keys[start] == tok {
			start++
		}
	}
	limit := 1000
	if in.MaxKeys != nil && *in.MaxKeys > 0 {
		limit = int(*in.MaxKeys)
	}

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for i := start; i < len(keys); i++ {
		if len(out.Contents) == limit {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(keys[i-1])
			break
		}
		obj := f.objects[keys[i]]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(keys[i]),
			Size:         aws.Int64(int64(len(obj.data))),
			ETag:         aws.String(quotedETag(obj.data)),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func (f *fakeS3) CopyObject(ctx context.Context, in *awss3.CopyObjectInput, _ ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CopyObject"); err != nil {
		return nil, err
	}
	bucketAndKey, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: "bad copy source"}
	}
	_, srcKey, ok := strings.Cut(bucketAndKey, "/")
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: "bad copy source"}
	}
	src, found := f.objects[srcKey]
	if !found {
		return nil, &types.NoSuchKey{}
	}
	cp := src
	cp.data = append([]byte(nil), src.data...)
	cp.modified = time.Now().UTC()
	f.objects[aws.ToString(in.Key)] = cp
	return &awss3.CopyObjectOutput{}, nil
}

var _ s3API = (*fakeS3)(nil)

func newTestStore(t *testing.T, fake *fakeS3) *Store {
	t.Helper()
	cfg := storage.Config{
		Provider:     storage.ProviderS3,
		Bucket:       "photoflow-media",
		Region:       "us-east-1",
		RetryBackoff: time.Millisecond,
	}
	cfg.ApplyDefaults()
	presign := func(_ context.Context, key string, ttl time.Duration) (string, error) {
		return fmt.Sprintf("https://photoflow-media.s3.amazonaws.com/%s?X-Amz-Expires=%d", key, int(ttl.Seconds())), nil
	}
	return newWithAPI(fake, presign, cfg, nil)
}

func TestUploadSmallObject(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()

	res, err := s.Upload(ctx, "albums/a1/photos/p1/original/cat.jpg", strings.NewReader("jpeg-bytes"), nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Size != int64(len("jpeg-bytes")) {
		t.Errorf("Size = %d", res.Size)
	}
	if strings.Contains(res.ETag, `"`) {
		t.Errorf("ETag %q should have quotes stripped", res.ETag)
	}
	if res.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg from extension", res.ContentType)
	}
	if fake.callCount("PutObject") != 1 || fake.callCount("CreateMultipartUpload") != 0 {
		t.Error("small uploads should use a single PutObject")
	}
}

func TestUploadLargeObjectUsesMultipart(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("m"), int(storage.MultipartThreshold)*2+1024)
	res, err := s.Upload(ctx, "big.bin", bytes.NewReader(payload), nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Size != int64(len(payload)) {
		t.Errorf("Size = %d, want %d", res.Size, len(payload))
	}
	if fake.callCount("CreateMultipartUpload") != 1 {
		t.Error("large uploads should go multipart")
	}
	if got := fake.callCount("UploadPart"); got != 3 {
		t.Errorf("UploadPart called %d times, want 3", got)
	}

	got, err := s.DownloadBuffer(ctx, "big.bin")
	if err != nil {
		t.Fatalf("DownloadBuffer: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("multipart reassembly does not match the payload")
	}
}

func TestDownloadRangeHeader(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()
	if _, err := s.Upload(ctx, "k", strings.NewReader("0123456789"), nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	rc, err := s.Download(ctx, "k", &storage.DownloadOptions{Range: &storage.ByteRange{Start: 2, End: 5}})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "234" {
		t.Errorf("ranged read = %q, want %q (half-open range)", got, "234")
	}

	rc, err = s.Download(ctx, "k", &storage.DownloadOptions{Range: &storage.ByteRange{Start: 7, End: -1}})
	if err != nil {
		t.Fatalf("Download open-ended: %v", err)
	}
	defer rc.Close()
	got, _ = io.ReadAll(rc)
	if string(got) != "789" {
		t.Errorf("open-ended read = %q, want %q", got, "789")
	}

	if _, err := s.Download(ctx, "k", &storage.DownloadOptions{Range: &storage.ByteRange{Start: 5, End: 5}}); !storage.IsTerminal(err) {
		t.Errorf("empty range: err = %v, want terminal", err)
	}
}

func TestTransientErrorsRetry(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()
	if _, err := s.Upload(ctx, "k", strings.NewReader("x"), nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	fake.failNext("GetObject", &smithy.GenericAPIError{Code: "SlowDown", Message: "throttled"})
	fake.failNext("GetObject", &smithy.GenericAPIError{Code: "InternalError", Message: "oops"})

	rc, err := s.Download(ctx, "k", nil)
	if err != nil {
		t.Fatalf("Download should succeed after retries: %v", err)
	}
	rc.Close()
	if got := fake.callCount("GetObject"); got != 3 {
		t.Errorf("GetObject called %d times, want 3 (two transient failures + success)", got)
	}
}

func TestTerminalErrorsDoNotRetry(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()

	fake.failNext("HeadObject", &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"})

	_, err := s.Metadata(ctx, "k")
	if !storage.IsTerminal(err) {
		t.Fatalf("err = %v, want terminal", err)
	}
	if got := fake.callCount("HeadObject"); got != 1 {
		t.Errorf("HeadObject called %d times, want 1 (no retry on terminal)", got)
	}
}

func TestRetryExhaustionSurfacesError(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		fake.failNext("ListObjectsV2", &smithy.GenericAPIError{Code: "ServiceUnavailable"})
	}

	_, err := s.List(ctx, storage.ListOptions{})
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if got, want := fake.callCount("ListObjectsV2"), s.cfg.RetryAttempts; got != want {
		t.Errorf("ListObjectsV2 called %d times, want %d", got, want)
	}
}

func TestMetadataAndNotFound(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()

	custom := map[string]string{"photo-id": "p1"}
	if _, err := s.Upload(ctx, "k.png", strings.NewReader("png"), &storage.UploadOptions{Metadata: custom}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	meta, err := s.Metadata(ctx, "k.png")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Size != 3 || strings.Contains(meta.ETag, `"`) {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Custom["photo-id"] != "p1" {
		t.Error("custom metadata should round-trip")
	}

	if _, err := s.Metadata(ctx, "missing"); !storage.IsNotFound(err) {
		t.Errorf("Metadata(missing): err = %v, want not-found", err)
	}
	if _, err := s.DownloadBuffer(ctx, "missing"); !storage.IsNotFound(err) {
		t.Errorf("DownloadBuffer(missing): err = %v, want not-found", err)
	}
	ok, err := s.Exists(ctx, "missing")
	if err != nil || ok {
		t.Errorf("Exists(missing) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()
	if _, err := s.Upload(ctx, "k", strings.NewReader("x"), nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	existed, err := s.Delete(ctx, "k")
	if err != nil || !existed {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", existed, err)
	}
	existed, err = s.Delete(ctx, "k")
	if err != nil || existed {
		t.Fatalf("second Delete = (%v, %v), want (false, nil)", existed, err)
	}
}

func TestDeleteBatchNativeBulk(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "locked/c", "d"} {
		if _, err := s.Upload(ctx, k, strings.NewReader("x"), nil); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	res, err := s.DeleteBatch(ctx, []string{"a", "b", "locked/c", "d"})
	if err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if fake.callCount("DeleteObjects") != 1 {
		t.Error("a small batch should need exactly one DeleteObjects call")
	}
	if len(res.Deleted) != 3 {
		t.Errorf("deleted %d, want 3", len(res.Deleted))
	}
	if len(res.Failed) != 1 || res.Failed[0].Key != "locked/c" {
		t.Fatalf("failed = %+v, want locked/c", res.Failed)
	}
	if !storage.IsTerminal(res.Failed[0].Err) {
		t.Error("AccessDenied should classify as terminal")
	}
}

func TestDeleteBatchChunks(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()

	keys := make([]string, maxDeleteBatch+5)
	for i := range keys {
		keys[i] = fmt.Sprintf("bulk/%04d", i)
	}

	res, err := s.DeleteBatch(ctx, keys)
	if err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if got := fake.callCount("DeleteObjects"); got != 2 {
		t.Errorf("DeleteObjects called %d times, want 2 chunks", got)
	}
	if len(res.Deleted) != len(keys) {
		t.Errorf("deleted %d, want %d", len(res.Deleted), len(keys))
	}
}

func TestListPagination(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()
	want := []string{"p/a", "p/b", "p/c", "p/d", "p/e"}
	for _, k := range want {
		if _, err := s.Upload(ctx, k, strings.NewReader("x"), nil); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	var got []string
	token := ""
	for {
		res, err := s.List(ctx, storage.ListOptions{Prefix: "p/", MaxResults: 2, ContinuationToken: token})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		got = append(got, res.Keys...)
		if !res.IsTruncated {
			break
		}
		token = res.ContinuationToken
	}

	if len(got) != len(want) {
		t.Fatalf("got %d keys, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListWithMetadataStripsETagQuotes(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()
	if _, err := s.Upload(ctx, "a", strings.NewReader("aaaa"), nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	res, err := s.ListWithMetadata(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListWithMetadata: %v", err)
	}
	if len(res.Objects) != 1 {
		t.Fatalf("got %d objects", len(res.Objects))
	}
	if strings.Contains(res.Objects[0].ETag, `"`) {
		t.Errorf("listed ETag %q should have quotes stripped", res.Objects[0].ETag)
	}
}

func TestCopy(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()
	if _, err := s.Upload(ctx, "src key.jpg", strings.NewReader("payload"), nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := s.Copy(ctx, "src key.jpg", "dst.jpg"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := s.DownloadBuffer(ctx, "dst.jpg")
	if err != nil {
		t.Fatalf("DownloadBuffer: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("content = %q", got)
	}

	if err := s.Copy(ctx, "missing", "dst2"); !storage.IsNotFound(err) {
		t.Errorf("Copy(missing): err = %v, want not-found", err)
	}
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  storage.Config
		key  string
		want string
	}{
		{
			name: "virtual hosted default",
			cfg:  storage.Config{Bucket: "photoflow-media", Region: "eu-west-1"},
			key:  "albums/a 1/img.jpg",
			want: "https://photoflow-media.s3.eu-west-1.amazonaws.com/albums/a%201/img.jpg",
		},
		{
			name: "custom endpoint path style",
			cfg:  storage.Config{Bucket: "media", Region: "us-east-1", Endpoint: "http://localhost:9000"},
			key:  "k.jpg",
			want: "http://localhost:9000/media/k.jpg",
		},
		{
			name: "public base override",
			cfg:  storage.Config{Bucket: "media", Region: "us-east-1", PublicBaseURL: "https://cdn.example.com/"},
			key:  "k.jpg",
			want: "https://cdn.example.com/k.jpg",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Provider = storage.ProviderS3
			tc.cfg.ApplyDefaults()
			s := newWithAPI(newFakeS3(), nil, tc.cfg, nil)
			if got := s.PublicURL(tc.key); got != tc.want {
				t.Errorf("PublicURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSignedURL(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	u, err := s.SignedURL(context.Background(), "k", 900*time.Second)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(u, "X-Amz-Expires=900") {
		t.Errorf("signed URL = %q", u)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want func(error) bool
		desc string
	}{
		{name: "no such key", err: &types.NoSuchKey{}, want: storage.IsNotFound, desc: "not-found"},
		{name: "head not found", err: &types.NotFound{}, want: storage.IsNotFound, desc: "not-found"},
		{name: "slow down", err: &smithy.GenericAPIError{Code: "SlowDown"}, want: storage.IsTransient, desc: "transient"},
		{name: "throttling", err: &smithy.GenericAPIError{Code: "ThrottlingException"}, want: storage.IsTransient, desc: "transient"},
		{name: "server fault", err: &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, want: storage.IsTransient, desc: "transient"},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: storage.IsTerminal, desc: "terminal"},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: storage.IsTransient, desc: "transient"},
		{name: "plain error", err: errors.New("?"), want: storage.IsTerminal, desc: "terminal"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify("op", "k", tc.err)
			if !tc.want(got) {
				t.Errorf("classify(%v) = %v, want %s", tc.err, got, tc.desc)
			}
		})
	}

	if err := classify("op", "k", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Error("context cancellation must pass through unclassified")
	}
}
