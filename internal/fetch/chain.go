package fetch

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
)

// Chain tries each fetcher in order and returns the first success. When all
// fail, the error carries the reason of the last attempt and joins every
// underlying error.
type Chain []Fetcher

// Fetch implements Fetcher.
func (c Chain) Fetch(ctx context.Context, source string) ([]byte, error) {
	if len(c) == 0 {
		return nil, NewError(ReasonInvalidSource, source, errors.New("no fetcher configured"))
	}

	var (
		errs []error
		last *Error
	)
	for _, f := range c {
		data, err := f.Fetch(ctx, source)
		if err == nil {
			return data, nil
		}
		last = Classify(source, err)
		errs = append(errs, err)

		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 1 {
		return nil, last
	}
	return nil, &Error{
		Reason: last.Reason,
		Source: source,
		Status: last.Status,
		Err:    errors.Join(errs...),
	}
}

type mirror struct {
	base *url.URL
	next Fetcher
}

// Mirror returns a fetcher that moves absolute URL sources onto base before
// delegating to next: https://old.example.com/img/a.png with base
// https://cdn.example.com/legacy becomes https://cdn.example.com/legacy/img/a.png.
// Sources that are not absolute URLs are passed through unchanged.
func Mirror(base *url.URL, next Fetcher) Fetcher {
	return &mirror{base: base, next: next}
}

func (m *mirror) Fetch(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil || !u.IsAbs() {
		return m.next.Fetch(ctx, source)
	}

	moved := *u
	moved.Scheme = m.base.Scheme
	moved.Host = m.base.Host
	moved.User = m.base.User
	moved.Path = path.Join("/", m.base.Path, u.Path)
	moved.RawPath = ""

	data, err := m.next.Fetch(ctx, moved.String())
	if err != nil {
		fe := Classify(source, err)
		return nil, &Error{Reason: fe.Reason, Source: source, Status: fe.Status, Err: err}
	}
	return data, nil
}

// Router dispatches a source to a fetcher by URL scheme ("r2://key",
// "gcs://key", "https://..."). Sources without a registered scheme go to the
// fallback.
type Router struct {
	routes   map[string]Fetcher
	fallback Fetcher
}

// NewRouter creates a Router. fallback may be nil.
func NewRouter(fallback Fetcher) *Router {
	return &Router{
		routes:   make(map[string]Fetcher),
		fallback: fallback,
	}
}

// Handle registers f for scheme.
func (r *Router) Handle(scheme string, f Fetcher) {
	r.routes[strings.ToLower(scheme)] = f
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, source string) ([]byte, error) {
	if scheme, _, ok := SplitScheme(source); ok {
		if f, found := r.routes[scheme]; found {
			return f.Fetch(ctx, source)
		}
	}
	if r.fallback == nil {
		return nil, NewError(ReasonInvalidSource, source, errors.New("no fetcher for source"))
	}
	return r.fallback.Fetch(ctx, source)
}

// SplitScheme splits "scheme://rest" into its lower-cased scheme and rest.
func SplitScheme(source string) (scheme, rest string, ok bool) {
	i := strings.Index(source, "://")
	if i <= 0 {
		return "", source, false
	}
	return strings.ToLower(source[:i]), source[i+3:], true
}

// StripScheme returns a fetcher that removes a leading "scheme://" before
// delegating, turning "r2://imgs/a.png" into the key "imgs/a.png".
func StripScheme(next Fetcher) Fetcher {
	return Func(func(ctx context.Context, source string) ([]byte, error) {
		_, rest, _ := SplitScheme(source)
		data, err := next.Fetch(ctx, rest)
		if err != nil {
			fe := Classify(rest, err)
			return nil, &Error{Reason: fe.Reason, Source: source, Status: fe.Status, Err: fe.Err}
		}
		return data, nil
	})
}

// Unavailable returns a fetcher that always fails with reason. It stands in
// for a transport that could not be configured.
func Unavailable(reason Reason, err error) Fetcher {
	return Func(func(_ context.Context, source string) ([]byte, error) {
		return nil, NewError(reason, source, err)
	})
}
