// Package discover finds image URLs on web pages so they can be synchronised.
package discover

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/net/html"

	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/fetch"
)

// DefaultExtensions are the image extensions kept when none are configured.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "svg"}

var backgroundURL = regexp.MustCompile(`background(?:-image)?\s*:[^;]*?url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

// Discoverer scans pages for images.
type Discoverer struct {
	fetcher    fetch.Fetcher
	logger     *slog.Logger
	extensions map[string]struct{}
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithLogger sets the logger used to report skipped pages.
func WithLogger(l *slog.Logger) Option {
	return func(d *Discoverer) { d.logger = l }
}

// WithExtensions restricts the kept images to the given extensions
// (case-insensitive, with or without leading dot).
func WithExtensions(exts []string) Option {
	return func(d *Discoverer) {
		if len(exts) == 0 {
			return
		}
		d.extensions = extensionSet(exts)
	}
}

// New creates a Discoverer fetching pages through f.
func New(f fetch.Fetcher, opts ...Option) *Discoverer {
	d := &Discoverer{
		fetcher:    f,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		extensions: extensionSet(DefaultExtensions),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return set
}

// Discover scans every page (resolved against base), merges the known image
// paths, and returns one descriptor per unique same-host image URL, sorted.
// Pages that cannot be fetched or parsed are logged and skipped.
func (d *Discoverer) Discover(ctx context.Context, base *url.URL, pages, known []string) ([]config.Descriptor, error) {
	if base == nil || !base.IsAbs() {
		return nil, goerr.New("discovery needs an absolute base URL")
	}

	found := make(map[string]struct{})
	add := func(raw string) {
		if u, ok := d.keep(base, raw); ok {
			found[u] = struct{}{}
		}
	}

	for _, k := range known {
		add(resolve(base, k))
	}

	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL, err := base.Parse(p)
		if err != nil {
			d.logger.Warn("skipping invalid page", "page", p, "error", err)
			continue
		}

		d.logger.Info("scanning page", "page", pageURL.String())
		body, err := d.fetcher.Fetch(ctx, pageURL.String())
		if err != nil {
			d.logger.Warn("failed to fetch page", "page", pageURL.String(), "error", err)
			continue
		}

		urls, err := ExtractImageURLs(pageURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Warn("failed to parse page", "page", pageURL.String(), "error", err)
			continue
		}
		d.logger.Debug("page scanned", "page", pageURL.String(), "candidates", len(urls))

		for _, u := range urls {
			add(u)
		}
	}

	sorted := make([]string, 0, len(found))
	for u := range found {
		sorted = append(sorted, u)
	}
	sort.Strings(sorted)

	descs := make([]config.Descriptor, len(sorted))
	for i, u := range sorted {
		descs[i] = config.Descriptor{Source: u}
	}
	return descs, nil
}

// keep reports whether raw is a same-host image URL and returns it normalised.
func (d *Discoverer) keep(base *url.URL, raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return "", false
	}
	if !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return "", false
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if _, ok := d.extensions[ext]; !ok {
		return "", false
	}

	u.Fragment = ""
	return u.String(), true
}

func resolve(base *url.URL, ref string) string {
	u, err := base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return u.String()
}

// ExtractImageURLs parses an HTML document and returns the absolute URLs of
// every <img src>, <img srcset>, <img data-src>, <source srcset> and inline
// background image, in document order. data: URIs are dropped.
func ExtractImageURLs(page *url.URL, r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse HTML", goerr.V("page", page.String()))
	}

	var urls []string
	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" || strings.HasPrefix(strings.ToLower(ref), "data:") {
			return
		}
		if abs := resolve(page, ref); abs != "" {
			urls = append(urls, abs)
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				switch {
				case attr.Key == "style":
					for _, m := range backgroundURL.FindAllStringSubmatch(attr.Val, -1) {
						add(m[1])
					}
				case n.Data == "img" && (attr.Key == "src" || attr.Key == "data-src"):
					add(attr.Val)
				case (n.Data == "img" || n.Data == "source") && attr.Key == "srcset":
					for _, candidate := range parseSrcset(attr.Val) {
						add(candidate)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return urls, nil
}

// parseSrcset returns the URLs of a srcset attribute ("a.png 1x, b.png 2x").
// Commas inside a URL are kept; a candidate ends at whitespace, or at
// trailing commas glued to the URL.
func parseSrcset(v string) []string {
	var out []string
	isSpace := func(c byte) bool {
		return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
	}

	i := 0
	for i < len(v) {
		for i < len(v) && (isSpace(v[i]) || v[i] == ',') {
			i++
		}
		if i == len(v) {
			break
		}

		start := i
		for i < len(v) && !isSpace(v[i]) {
			i++
		}
		u := v[start:i]
		if strings.HasSuffix(u, ",") {
			if u = strings.TrimRight(u, ","); u != "" {
				out = append(out, u)
			}
			continue
		}
		out = append(out, u)

		i = skipDescriptors(v, i)
	}
	return out
}

// skipDescriptors returns the index just past the comma that ends the
// descriptors starting at i. Commas inside parentheses do not count.
func skipDescriptors(v string, i int) int {
	depth := 0
	for ; i < len(v); i++ {
		switch v[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}
