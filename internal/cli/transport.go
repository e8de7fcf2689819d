package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/api/option"

	"github.com/cbout22/assetsync/internal/auth"
	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/fetch"
	"github.com/cbout22/assetsync/internal/manifest"
	"github.com/cbout22/assetsync/internal/storage"
)

// Storage providers accepted in [storage] and as source schemes.
const (
	providerR2  = "r2"
	providerGCS = "gcs"
)

// transport is the fetcher built for one command, plus what must be
// released afterwards.
type transport struct {
	fetch.Fetcher
	closers []func() error
}

func (t *transport) Close() error {
	var first error
	for _, c := range t.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newWebFetcher builds the HTTP fetcher described by the manifest: base URL
// for relative sources, user agent, optional bearer token. The token is only
// sent to the base_url host, so it is dropped without a base_url.
func newWebFetcher(m *manifest.Manifest, creds *auth.Credentials) (*fetch.HTTP, error) {
	var opts []fetch.HTTPOption
	var tokenHost string
	if m.BaseURL != "" {
		base, err := parseAbsURL(m.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("base_url: %w", err)
		}
		tokenHost = base.Host
		opts = append(opts, fetch.WithBaseURL(base))
	}
	opts = append(opts, fetch.WithClient(auth.NewHTTPClient(creds.HTTPToken, tokenHost, m.SyncOptions().FetchTimeout)))
	if m.UserAgent != "" {
		opts = append(opts, fetch.WithUserAgent(m.UserAgent))
	}
	return fetch.NewHTTP(opts...), nil
}

// webChain resolves relative sources against the base URL, then tries the
// origin followed by each mirror.
func webChain(web *fetch.HTTP, mirrors []string) (fetch.Fetcher, error) {
	chain := fetch.Chain{web}
	for _, raw := range mirrors {
		u, err := parseAbsURL(raw)
		if err != nil {
			return nil, fmt.Errorf("mirror %q: %w", raw, err)
		}
		chain = append(chain, fetch.Mirror(u, web))
	}
	if len(chain) == 1 {
		return web, nil
	}

	return fetch.Func(func(ctx context.Context, source string) ([]byte, error) {
		target, err := web.Resolve(source)
		if err != nil {
			return nil, err
		}
		return chain.Fetch(ctx, target)
	}), nil
}

// newTransport builds the fetcher used by sync, scrape and add: web sources
// go through the HTTP chain, r2:// and gcs:// sources to object storage.
// The GCS client is only created when a gcs:// source is present.
func newTransport(ctx context.Context, m *manifest.Manifest, creds *auth.Credentials, descs []config.Descriptor) (*transport, error) {
	web, err := newWebFetcher(m, creds)
	if err != nil {
		return nil, err
	}
	origin, err := webChain(web, m.Mirrors)
	if err != nil {
		return nil, err
	}

	t := &transport{}
	router := fetch.NewRouter(origin)
	router.Handle(providerR2, fetch.StripScheme(storage.NewS3(creds, bucketFor(m, providerR2, creds.Bucket))))

	if usesScheme(descs, providerGCS) {
		gcs, err := newGCS(ctx, m, creds)
		if err != nil {
			router.Handle(providerGCS, fetch.Unavailable(fetch.ReasonMissingCredentials, err))
		} else {
			router.Handle(providerGCS, fetch.StripScheme(gcs))
			t.closers = append(t.closers, gcs.Close)
		}
	}

	t.Fetcher = router
	return t, nil
}

// newBucket opens the bucket selected by [storage].provider for `pull`.
func newBucket(ctx context.Context, m *manifest.Manifest, creds *auth.Credentials) (storage.Bucket, func() error, error) {
	switch strings.ToLower(m.Storage.Provider) {
	case "", providerR2:
		return storage.NewS3(creds, bucketFor(m, providerR2, creds.Bucket)), func() error { return nil }, nil
	case providerGCS:
		gcs, err := newGCS(ctx, m, creds)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", m.Storage.Provider)
	}
}

func newGCS(ctx context.Context, m *manifest.Manifest, creds *auth.Credentials) (*storage.GCS, error) {
	var opts []option.ClientOption
	if creds.GoogleCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(creds.GoogleCredentials))
	}
	return storage.NewGCS(ctx, bucketFor(m, providerGCS, creds.GCSBucket), opts...)
}

// publicFallback fetches object keys over HTTP from the bucket's public URL.
func publicFallback(web *fetch.HTTP, creds *auth.Credentials) fetch.Fetcher {
	return fetch.Func(func(ctx context.Context, key string) ([]byte, error) {
		target, err := creds.PublicURL(key)
		if err != nil {
			return nil, fetch.NewError(fetch.ReasonMissingCredentials, key, err)
		}
		data, err := web.Fetch(ctx, target)
		if err != nil {
			fe := fetch.Classify(target, err)
			return nil, &fetch.Error{Reason: fe.Reason, Source: key, Status: fe.Status, Err: err}
		}
		return data, nil
	})
}

// bucketFor returns the manifest bucket when [storage] targets provider,
// fallback otherwise.
func bucketFor(m *manifest.Manifest, provider, fallback string) string {
	p := strings.ToLower(m.Storage.Provider)
	if m.Storage.Bucket != "" && (p == provider || (p == "" && provider == providerR2)) {
		return m.Storage.Bucket
	}
	return fallback
}

func usesScheme(descs []config.Descriptor, scheme string) bool {
	for _, d := range descs {
		if s, _, ok := fetch.SplitScheme(d.Source); ok && s == scheme {
			return true
		}
	}
	return false
}

func parseAbsURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}
