package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cbout22/assetsync/internal/auth"
)

const (
	// DefaultUserAgent identifies requests as a regular desktop browser; some
	// legacy hosts refuse unknown clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// DefaultTimeout bounds a single request, body included.
	DefaultTimeout = 30 * time.Second

	maxRedirects = 10
)

// ErrTooManyRedirects is returned when a source redirects more than 10 times.
var ErrTooManyRedirects = errors.New("too many redirects")

// HTTP fetches sources over HTTP(S) GET.
type HTTP struct {
	client    *http.Client
	userAgent string
	base      *url.URL
	maxBytes  int64
}

// HTTPOption configures an HTTP fetcher.
type HTTPOption func(*HTTP)

// WithClient sets the underlying client. Its redirect policy is replaced.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// WithBaseURL resolves relative sources against base.
func WithBaseURL(base *url.URL) HTTPOption {
	return func(h *HTTP) { h.base = base }
}

// WithMaxBytes rejects bodies larger than n bytes. Zero means no limit.
func WithMaxBytes(n int64) HTTPOption {
	return func(h *HTTP) { h.maxBytes = n }
}

// NewHTTP creates an HTTP fetcher. Without WithClient it uses an
// unauthenticated client with DefaultTimeout.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = auth.NewHTTPClient("", "", DefaultTimeout)
	}

	c := *h.client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return ErrTooManyRedirects
		}
		return nil
	}
	h.client = &c

	return h
}

// Resolve returns the absolute URL for source.
func (h *HTTP) Resolve(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", NewError(ReasonInvalidSource, source, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if h.base == nil {
		return "", NewError(ReasonInvalidSource, source, fmt.Errorf("relative source without base URL"))
	}
	return h.base.ResolveReference(u).String(), nil
}

// Fetch downloads source. Non-2xx responses become *Error with the status:
// 404 and 410 are not-found, 401 and 403 forbidden, anything else http-status.
func (h *HTTP) Fetch(ctx context.Context, source string) ([]byte, error) {
	target, err := h.Resolve(source)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NewError(ReasonInvalidSource, source, err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return nil, NewError(ReasonNetwork, source, err)
		}
		return nil, Classify(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)

		reason := ReasonHTTPStatus
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusGone:
			reason = ReasonNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			reason = ReasonForbidden
		case http.StatusInsufficientStorage:
			reason = ReasonStorageQuota
		}
		return nil, &Error{
			Reason: reason,
			Source: source,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("GET %s: %s", target, resp.Status),
		}
	}

	var body io.Reader = resp.Body
	if h.maxBytes > 0 {
		body = io.LimitReader(resp.Body, h.maxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, Classify(source, err)
	}
	if h.maxBytes > 0 && int64(len(data)) > h.maxBytes {
		return nil, NewError(ReasonTooLarge, source, fmt.Errorf("body exceeds %d bytes", h.maxBytes))
	}

	return data, nil
}
