package lifecycle

import "strings"

// FileKind classifies a stored object by its place in the key layout.
type FileKind string

const (
	FileKindOriginal  FileKind = "original"
	FileKindThumbnail FileKind = "thumbnail"
	FileKindPreview   FileKind = "preview"
	FileKindUnknown   FileKind = "unknown"
)

// ParseKind maps a key segment to a FileKind, FileKindUnknown when it is
// not recognized.
func ParseKind(s string) FileKind {
	switch k := FileKind(s); k {
	case FileKindOriginal, FileKindThumbnail, FileKindPreview:
		return k
	default:
		return FileKindUnknown
	}
}

// PathInfo holds the components of a key following the photo library
// layout albums/<albumID>/photos/<photoID>/<kind>/<filename>.
type PathInfo struct {
	AlbumID  string
	PhotoID  string
	Kind     FileKind
	FileName string
}

// ParsePath extracts PathInfo from key. ok is false for keys outside the
// layout; conditions on path components then fail closed.
func ParsePath(key string) (*PathInfo, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 6 || parts[0] != "albums" || parts[2] != "photos" {
		return nil, false
	}
	kind := ParseKind(parts[4])
	if parts[1] == "" || parts[3] == "" || parts[5] == "" || kind == FileKindUnknown {
		return nil, false
	}
	return &PathInfo{
		AlbumID:  parts[1],
		PhotoID:  parts[3],
		Kind:     kind,
		FileName: parts[5],
	}, true
}
