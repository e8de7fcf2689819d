package config

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultExtension is appended to names that carry no extension of their own.
const DefaultExtension = "bin"

var (
	// ErrEmptyName is returned when a name sanitises to nothing.
	ErrEmptyName = errors.New("empty asset name")

	// ErrEmptySource is returned for descriptors without a source locator.
	ErrEmptySource = errors.New("empty asset source")
)

// nonWord matches everything a sanitised stem or extension may not contain.
var nonWord = regexp.MustCompile(`[^a-z0-9_-]`)

// Descriptor names one asset to synchronise: where it comes from and what the
// local copy should be called.
type Descriptor struct {
	Source string // URL or storage key, opaque to the synchronizer
	Name   string // requested destination name; derived from Source when empty
}

// String returns "name <- source".
func (d Descriptor) String() string {
	if d.Name == "" {
		return d.Source
	}
	return fmt.Sprintf("%s <- %s", d.Name, d.Source)
}

// SanitizeName turns an arbitrary name into a filesystem-safe one.
//
// The result is lower-case, every character outside [a-z0-9_-] is replaced
// with '_', and it carries exactly one extension separator: a dot inside the
// stem becomes '_', and a name without extension gets DefaultExtension.
// Path separators are not special, so "gallery/a.jpg" becomes "gallery_a.jpg".
func SanitizeName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "", ErrEmptyName
	}

	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		stem, ext = name[:i], name[i+1:]
	}

	stem = nonWord.ReplaceAllString(stem, "_")
	ext = nonWord.ReplaceAllString(ext, "_")

	if stem == "" {
		stem = "asset"
	}
	if ext == "" {
		ext = DefaultExtension
	}

	return stem + "." + ext, nil
}

// NameFromSource derives a destination name from a source locator: the last
// path element of a URL or storage key. Sources without a usable base name
// (no element, or no extension) get a stable "image_NNNN.jpg" name.
func NameFromSource(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		p = u.Path
		if unescaped, err := url.PathUnescape(p); err == nil {
			p = unescaped
		}
	}

	base := path.Base(strings.TrimRight(p, "/"))
	if base == "." || base == "/" || base == "" || !strings.Contains(base, ".") {
		h := fnv.New32a()
		_, _ = h.Write([]byte(source))
		return fmt.Sprintf("image_%04d.jpg", h.Sum32()%10000)
	}
	return base
}

// SplitExt splits a sanitised name into stem and extension (without the dot).
func SplitExt(name string) (stem, ext string) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// PlanNames computes the final destination name of every descriptor.
//
// Names are sanitised, then made unique in input order: the first holder of a
// name keeps it and later duplicates become stem-1.ext, stem-2.ext, ... The
// result is deterministic for a given input, so repeated runs land on the
// same files.
func PlanNames(descriptors []Descriptor) ([]string, error) {
	names := make([]string, len(descriptors))
	taken := make(map[string]struct{}, len(descriptors))

	for i, d := range descriptors {
		if strings.TrimSpace(d.Source) == "" {
			return nil, goerr.Wrap(ErrEmptySource, "invalid descriptor", goerr.V("index", i))
		}

		raw := d.Name
		if strings.TrimSpace(raw) == "" {
			raw = NameFromSource(d.Source)
		}

		name, err := SanitizeName(raw)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid descriptor",
				goerr.V("index", i),
				goerr.V("source", d.Source),
			)
		}

		name = uniqueName(name, taken)
		taken[name] = struct{}{}
		names[i] = name
	}

	return names, nil
}

func uniqueName(name string, taken map[string]struct{}) string {
	if _, ok := taken[name]; !ok {
		return name
	}

	stem, ext := SplitExt(name)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d.%s", stem, n, ext)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
