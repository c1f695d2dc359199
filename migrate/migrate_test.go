package migrate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sean-she/photoflow-storage/storage"
	"github.com/sean-she/photoflow-storage/storage/memory"
)

var migNow = time.Now().UTC()

func newStore() *memory.Store {
	return memory.New(storage.Config{Provider: storage.ProviderMemory}, nil)
}

func seedSource(src *memory.Store, n int) []string {
	keys := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		k := fmt.Sprintf("albums/a1/photos/p%d/original/x.jpg", i)
		src.Seed(k, []byte(fmt.Sprintf("photo-%d", i)), migNow.AddDate(0, 0, -i), map[string]string{
			"owner": "u1",
		})
		keys = append(keys, k)
	}
	return keys
}

func TestRunCopiesObjects(t *testing.T) {
	src, dst := newStore(), newStore()
	keys := seedSource(src, 3)

	res, err := Run(context.Background(), src, dst, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.MigrationID == "" {
		t.Error("MigrationID is empty")
	}
	if res.Source != "memory" || res.Dest != "memory" {
		t.Errorf("providers = %s -> %s, want memory -> memory", res.Source, res.Dest)
	}
	if res.Copied != 3 || res.Failed != 0 || len(res.Errors) != 0 {
		t.Fatalf("copied=%d failed=%d errors=%d, want 3/0/0", res.Copied, res.Failed, len(res.Errors))
	}
	wantBytes := int64(len("photo-1") * 3)
	if res.BytesCopied != wantBytes {
		t.Errorf("BytesCopied = %d, want %d", res.BytesCopied, wantBytes)
	}

	for _, k := range keys {
		meta, err := dst.Metadata(context.Background(), k)
		if err != nil {
			t.Fatalf("dest Metadata(%q): %v", k, err)
		}
		if meta.ContentType != "image/jpeg" {
			t.Errorf("%q ContentType = %q, want preserved image/jpeg", k, meta.ContentType)
		}
		if meta.Custom["owner"] != "u1" {
			t.Errorf("%q Custom = %v, want owner preserved", k, meta.Custom)
		}
	}
	if src.Len() != 3 {
		t.Errorf("source Len = %d, want untouched without DeleteSource", src.Len())
	}
}

func TestRunPrefix(t *testing.T) {
	src, dst := newStore(), newStore()
	src.Seed("albums/a1/photos/p1/original/x.jpg", []byte("a"), migNow, nil)
	src.Seed("albums/b2/photos/p1/original/x.jpg", []byte("b"), migNow, nil)

	res, err := Run(context.Background(), src, dst, Options{Prefix: "albums/a1/"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Copied != 1 || dst.Len() != 1 {
		t.Errorf("copied=%d destLen=%d, want 1/1 under prefix", res.Copied, dst.Len())
	}
}

func TestRunDeleteSource(t *testing.T) {
	src, dst := newStore(), newStore()
	seedSource(src, 2)

	res, err := Run(context.Background(), src, dst, Options{DeleteSource: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Copied != 2 || res.Deleted != 2 {
		t.Errorf("copied=%d deleted=%d, want 2/2", res.Copied, res.Deleted)
	}
	if src.Len() != 0 {
		t.Errorf("source Len = %d, want 0 after move", src.Len())
	}
	if dst.Len() != 2 {
		t.Errorf("dest Len = %d, want 2", dst.Len())
	}
}

func TestRunVerify(t *testing.T) {
	t.Run("clean copy passes", func(t *testing.T) {
		src, dst := newStore(), newStore()
		seedSource(src, 2)

		res, err := Run(context.Background(), src, dst, Options{Verify: true})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Copied != 2 || res.Failed != 0 {
			t.Errorf("copied=%d failed=%d, want 2/0", res.Copied, res.Failed)
		}
	})

	t.Run("verify read failure recorded", func(t *testing.T) {
		src, dst := newStore(), newStore()
		seedSource(src, 1)
		dst.FailNext("metadata", storage.TransientError("metadata", "", errors.New("induced outage")))

		res, err := Run(context.Background(), src, dst, Options{Verify: true})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Failed != 1 || res.Copied != 0 {
			t.Fatalf("failed=%d copied=%d, want 1/0", res.Failed, res.Copied)
		}
		if len(res.Errors) != 1 || res.Errors[0].Stage != "verify" {
			t.Errorf("Errors = %+v, want one verify-stage failure", res.Errors)
		}
	})
}

func TestRunUploadFailureContinues(t *testing.T) {
	src, dst := newStore(), newStore()
	seedSource(src, 3)
	dst.FailNext("upload", storage.TerminalError("upload", "", errors.New("rejected")))

	res, err := Run(context.Background(), src, dst, Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Copied != 2 || res.Failed != 1 {
		t.Fatalf("copied=%d failed=%d, want 2/1", res.Copied, res.Failed)
	}
	if len(res.Errors) != 1 || res.Errors[0].Stage != "upload" {
		t.Errorf("Errors = %+v, want one upload-stage failure", res.Errors)
	}
	if dst.Len() != 2 {
		t.Errorf("dest Len = %d, want 2", dst.Len())
	}
}

func TestRunDownloadFailureContinues(t *testing.T) {
	src, dst := newStore(), newStore()
	seedSource(src, 2)
	src.FailNext("download", storage.TransientError("download", "", errors.New("induced outage")))

	res, err := Run(context.Background(), src, dst, Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Copied != 1 || res.Failed != 1 {
		t.Fatalf("copied=%d failed=%d, want 1/1", res.Copied, res.Failed)
	}
	if res.Errors[0].Stage != "download" {
		t.Errorf("stage = %q, want download", res.Errors[0].Stage)
	}
}

func TestRunDeleteFailureKeepsCopyCounted(t *testing.T) {
	src, dst := newStore(), newStore()
	seedSource(src, 2)
	src.FailNext("delete", storage.TransientError("delete", "", errors.New("induced outage")))

	res, err := Run(context.Background(), src, dst, Options{DeleteSource: true, Concurrency: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Copied != 2 {
		t.Errorf("Copied = %d, want 2: a failed source delete is not a failed copy", res.Copied)
	}
	if res.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", res.Deleted)
	}
	if len(res.Errors) != 1 || res.Errors[0].Stage != "delete" {
		t.Errorf("Errors = %+v, want one delete-stage failure", res.Errors)
	}
	if src.Len() != 1 {
		t.Errorf("source Len = %d, want the failed delete left behind", src.Len())
	}
}

func TestRunMaxFiles(t *testing.T) {
	src, dst := newStore(), newStore()
	seedSource(src, 5)

	res, err := Run(context.Background(), src, dst, Options{MaxFiles: 2, PageSize: 1, Concurrency: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Copied != 2 || dst.Len() != 2 {
		t.Errorf("copied=%d destLen=%d, want MaxFiles 2", res.Copied, dst.Len())
	}
}

func TestRunProgress(t *testing.T) {
	src, dst := newStore(), newStore()
	seedSource(src, 3)

	var seen []Progress
	res, err := Run(context.Background(), src, dst, Options{
		PageSize:    1,
		Concurrency: 1,
		OnProgress:  func(p Progress) { seen = append(seen, p) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != res.Copied {
		t.Fatalf("progress calls = %d, want %d", len(seen), res.Copied)
	}
	if last := seen[len(seen)-1]; last.Copied != 3 || last.Failed != 0 {
		t.Errorf("last progress = %+v, want copied 3", last)
	}
}

func TestRunContextCanceled(t *testing.T) {
	src, dst := newStore(), newStore()
	seedSource(src, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, src, dst, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if res == nil || res.Copied != 0 {
		t.Errorf("res = %+v, want empty partial result", res)
	}
}

func TestRunNilProviders(t *testing.T) {
	if _, err := Run(context.Background(), nil, newStore(), Options{}); err == nil {
		t.Error("Run: expected error for nil source")
	}
	if _, err := Run(context.Background(), newStore(), nil, Options{}); err == nil {
		t.Error("Run: expected error for nil destination")
	}
}
