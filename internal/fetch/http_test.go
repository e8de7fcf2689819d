package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/cbout22/assetsync/internal/auth"
)

// newTestServer creates an httptest.Server with simple path routing.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := routes[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

func TestHTTPFetch_Success(t *testing.T) {
	t.Parallel()
	var gotUA string
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/img/logo.png": func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			fmt.Fprint(w, "PNGDATA")
		},
	})

	h := NewHTTP(WithClient(ts.Client()))
	data, err := h.Fetch(context.Background(), ts.URL+"/img/logo.png")
	gt.NoError(t, err)
	gt.Equal(t, string(data), "PNGDATA")
	gt.Equal(t, gotUA, DefaultUserAgent)
}

func TestHTTPFetch_CustomUserAgent(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/a.png": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("User-Agent") != "assetsync-test" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			fmt.Fprint(w, "ok")
		},
	})

	h := NewHTTP(WithClient(ts.Client()), WithUserAgent("assetsync-test"))
	_, err := h.Fetch(context.Background(), ts.URL+"/a.png")
	gt.NoError(t, err)
}

func TestHTTPFetch_StatusClassification(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/gone":      status(http.StatusGone),
		"/private":   status(http.StatusForbidden),
		"/login":     status(http.StatusUnauthorized),
		"/broken":    status(http.StatusInternalServerError),
		"/throttled": status(http.StatusTooManyRequests),
		"/teapot":    status(http.StatusTeapot),
		"/full":      status(http.StatusInsufficientStorage),
	})

	cases := []struct {
		path      string
		reason    Reason
		status    int
		transient bool
	}{
		{"/missing", ReasonNotFound, 404, false},
		{"/gone", ReasonNotFound, 410, false},
		{"/private", ReasonForbidden, 403, false},
		{"/login", ReasonForbidden, 401, false},
		{"/broken", ReasonHTTPStatus, 500, true},
		{"/throttled", ReasonHTTPStatus, 429, true},
		{"/teapot", ReasonHTTPStatus, 418, false},
		{"/full", ReasonStorageQuota, 507, false},
	}

	h := NewHTTP(WithClient(ts.Client()))
	for _, tc := range cases {
		_, err := h.Fetch(context.Background(), ts.URL+tc.path)
		var fe *Error
		if !errors.As(err, &fe) {
			t.Fatalf("%s: expected *Error, got %v", tc.path, err)
		}
		if fe.Reason != tc.reason || fe.Status != tc.status || fe.Transient() != tc.transient {
			t.Errorf("%s: got reason=%s status=%d transient=%v, want %s/%d/%v",
				tc.path, fe.Reason, fe.Status, fe.Transient(), tc.reason, tc.status, tc.transient)
		}
	}
}

func TestHTTPFetch_FollowsRedirects(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/old.png": func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/new.png", http.StatusMovedPermanently)
		},
		"/new.png": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "moved")
		},
	})

	h := NewHTTP(WithClient(ts.Client()))
	data, err := h.Fetch(context.Background(), ts.URL+"/old.png")
	gt.NoError(t, err)
	gt.Equal(t, string(data), "moved")
}

func TestHTTPFetch_TooManyRedirects(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/loop": func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/loop", http.StatusFound)
		},
	})

	h := NewHTTP(WithClient(ts.Client()))
	_, err := h.Fetch(context.Background(), ts.URL+"/loop")
	gt.True(t, errors.Is(err, ErrTooManyRedirects))
	gt.Equal(t, ReasonOf(err), ReasonNetwork)
}

func TestHTTPFetch_TokenStaysOnOrigin(t *testing.T) {
	t.Parallel()
	foreign := newTestServer(t, map[string]http.HandlerFunc{
		"/logo.png": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "" {
				t.Errorf("foreign host got Authorization %q", got)
			}
			fmt.Fprint(w, "logo")
		},
	})
	origin := newTestServer(t, map[string]http.HandlerFunc{
		"/images/logo.png": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer s3cr3t" {
				t.Errorf("origin Authorization = %q, want Bearer s3cr3t", got)
			}
			http.Redirect(w, r, foreign.URL+"/logo.png", http.StatusFound)
		},
	})
	u, err := url.Parse(origin.URL)
	gt.NoError(t, err)

	h := NewHTTP(WithClient(auth.NewHTTPClient("s3cr3t", u.Host, time.Second)))
	data, err := h.Fetch(context.Background(), origin.URL+"/images/logo.png")
	gt.NoError(t, err)
	gt.Equal(t, string(data), "logo")
}

func TestHTTPFetch_Timeout(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/slow.png": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	})

	client := ts.Client()
	client.Timeout = 50 * time.Millisecond
	h := NewHTTP(WithClient(client))

	_, err := h.Fetch(context.Background(), ts.URL+"/slow.png")
	gt.Equal(t, ReasonOf(err), ReasonTimeout)
	gt.True(t, IsTransient(err))
}

func TestHTTPFetch_ContextDeadline(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/slow.png": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h := NewHTTP(WithClient(ts.Client()))
	_, err := h.Fetch(ctx, ts.URL+"/slow.png")
	gt.Equal(t, ReasonOf(err), ReasonTimeout)
}

func TestHTTPFetch_ConnectionRefused(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	h := NewHTTP()
	_, err := h.Fetch(context.Background(), addr+"/a.png")
	gt.Equal(t, ReasonOf(err), ReasonNetwork)
}

func TestHTTPFetch_BaseURL(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/site/img/a.png": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "relative")
		},
	})

	base, err := url.Parse(ts.URL + "/site/")
	gt.NoError(t, err)

	h := NewHTTP(WithClient(ts.Client()), WithBaseURL(base))
	data, err := h.Fetch(context.Background(), "img/a.png")
	gt.NoError(t, err)
	gt.Equal(t, string(data), "relative")
}

func TestHTTPFetch_RelativeWithoutBase(t *testing.T) {
	t.Parallel()
	h := NewHTTP()
	_, err := h.Fetch(context.Background(), "img/a.png")
	gt.Equal(t, ReasonOf(err), ReasonInvalidSource)
	gt.True(t, !IsTransient(err))
}

func TestHTTPFetch_MaxBytes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/big.png": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, strings.Repeat("x", 100))
		},
	})

	h := NewHTTP(WithClient(ts.Client()), WithMaxBytes(10))
	_, err := h.Fetch(context.Background(), ts.URL+"/big.png")
	gt.Equal(t, ReasonOf(err), ReasonTooLarge)

	h = NewHTTP(WithClient(ts.Client()), WithMaxBytes(100))
	data, err := h.Fetch(context.Background(), ts.URL+"/big.png")
	gt.NoError(t, err)
	gt.Equal(t, len(data), 100)
}
