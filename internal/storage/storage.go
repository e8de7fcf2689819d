// Package storage adapts object-storage buckets (Cloudflare R2 through the
// S3 API, Google Cloud Storage) to the fetch capability and lists their
// contents as asset descriptors.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/fetch"
)

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Lister enumerates the objects below a key prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Bucket is a readable and listable object store. Fetch takes an object key
// as source.
type Bucket interface {
	fetch.Fetcher
	Lister
}

// isObjectKey reports whether key names a file: folder placeholders ending in
// '/' and keys without extension are skipped.
func isObjectKey(key string) bool {
	if key == "" || strings.HasSuffix(key, "/") {
		return false
	}
	return strings.Contains(path.Base(key), ".")
}

// Descriptors maps a listing to descriptors. The source is the object key and
// the requested name is the key below prefix, which sanitisation flattens
// ("gallery/2020/a.jpg" becomes "gallery_2020_a.jpg").
func Descriptors(objects []ObjectInfo, prefix string) []config.Descriptor {
	descs := make([]config.Descriptor, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		name = strings.TrimPrefix(name, "/")
		if name == "" {
			name = path.Base(obj.Key)
		}
		descs = append(descs, config.Descriptor{Source: obj.Key, Name: name})
	}
	return descs
}
