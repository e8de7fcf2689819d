package storage

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cbout22/assetsync/internal/fetch"
)

// GCS reads a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a GCS bucket reader. Credentials are resolved the usual
// way (GOOGLE_APPLICATION_CREDENTIALS, metadata server) unless opts say
// otherwise.
func NewGCS(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fetch.NewError(fetch.ReasonMissingCredentials, "", errors.New("set GCS_BUCKET"))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GCS client", goerr.V("bucket", bucket))
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Fetch downloads the object stored under key.
func (g *GCS) Fetch(ctx context.Context, key string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, classifyGCS(key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, classifyGCS(key, err)
	}
	return data, nil
}

// List returns every file object below prefix.
func (g *GCS) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(classifyGCS(prefix, err), "failed to list bucket",
				goerr.V("bucket", g.bucket),
				goerr.V("prefix", prefix),
			)
		}
		if !isObjectKey(attrs.Name) {
			continue
		}
		objects = append(objects, ObjectInfo{Key: attrs.Name, Size: attrs.Size})
	}
	return objects, nil
}

func classifyGCS(key string, err error) *fetch.Error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fetch.NewError(fetch.ReasonNotFound, key, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "rateLimitExceeded":
				return &fetch.Error{Reason: fetch.ReasonHTTPStatus, Source: key, Status: http.StatusTooManyRequests, Err: err}
			case "quotaExceeded", "storageQuotaExceeded":
				return &fetch.Error{Reason: fetch.ReasonStorageQuota, Source: key, Status: apiErr.Code, Err: err}
			}
		}

		fe := &fetch.Error{Reason: fetch.ReasonHTTPStatus, Source: key, Status: apiErr.Code, Err: err}
		switch apiErr.Code {
		case http.StatusNotFound:
			fe.Reason = fetch.ReasonNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			fe.Reason = fetch.ReasonForbidden
		}
		return fe
	}

	return fetch.Classify(key, err)
}
