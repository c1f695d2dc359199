package lifecycle

import (
	"context"
	"time"

	"github.com/sean-she/photoflow-storage/storage"
)

// lastAccessedKey is the user-metadata key carrying the last read time as
// an RFC 3339 timestamp.
const lastAccessedKey = "last-accessed"

// FileMetadata is a storage snapshot enriched with the derived fields the
// policy engine conditions on. It is built fresh for every evaluation and
// never cached across runs.
type FileMetadata struct {
	storage.FileMetadata

	// AgeDays is the whole days elapsed since LastModified.
	AgeDays int

	// AgeSinceAccessDays is the whole days since the last recorded
	// access, nil when the object carries no last-accessed metadata.
	AgeSinceAccessDays *int

	// Path holds the parsed key components, nil for keys outside the
	// photo library layout.
	Path *PathInfo
}

// Enrich derives the lifecycle fields from a storage snapshot as of now.
func Enrich(meta storage.FileMetadata, now time.Time) *FileMetadata {
	f := &FileMetadata{FileMetadata: meta}
	if !meta.LastModified.IsZero() {
		f.AgeDays = wholeDays(now.Sub(meta.LastModified))
	}
	if raw, ok := meta.Custom[lastAccessedKey]; ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			d := wholeDays(now.Sub(ts))
			f.AgeSinceAccessDays = &d
		}
	}
	f.Path, _ = ParsePath(meta.Key)
	return f
}

func wholeDays(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Collector builds lifecycle metadata for listed objects.
type Collector struct {
	provider storage.Provider
}

// NewCollector returns a Collector reading from p.
func NewCollector(p storage.Provider) *Collector {
	return &Collector{provider: p}
}

// Collect turns one listing entry into lifecycle metadata. When withHead
// is true the object's full metadata (content type, custom keys) is
// fetched from the provider; otherwise the listing fields are used as-is.
func (c *Collector) Collect(ctx context.Context, obj storage.ObjectInfo, withHead bool, now time.Time) (*FileMetadata, error) {
	if withHead {
		meta, err := c.provider.Metadata(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		return Enrich(*meta, now), nil
	}
	return Enrich(storage.FileMetadata{
		Key:          obj.Key,
		Size:         obj.Size,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
	}, now), nil
}
