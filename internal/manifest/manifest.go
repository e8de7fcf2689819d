package manifest

import (
	"bytes"
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/renameio/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/syncer"
)

const (
	DefaultManifestFile = "assets.toml"
	DefaultDestination  = "public/images"
)

// Manifest represents the full assets.toml file.
type Manifest struct {
	Destination string   `toml:"destination"`
	BaseURL     string   `toml:"base_url,omitempty"`
	Mirrors     []string `toml:"mirrors,omitempty"`
	UserAgent   string   `toml:"user_agent,omitempty"`

	Options  Options  `toml:"options"`
	Storage  Storage  `toml:"storage"`
	Discover Discover `toml:"discover"`

	Assets []Asset `toml:"asset"`
}

// Options mirrors syncer.Options in the manifest.
type Options struct {
	Overwrite  bool     `toml:"overwrite"`
	Delay      Duration `toml:"delay"`
	MaxRetries int      `toml:"max_retries"`
	Timeout    Duration `toml:"timeout"`
}

// Storage selects the bucket used by `pull` and by r2:// / gcs:// sources.
type Storage struct {
	Provider string `toml:"provider,omitempty"` // "r2" or "gcs"
	Bucket   string `toml:"bucket,omitempty"`
	Prefix   string `toml:"prefix,omitempty"`
}

// Discover lists the pages scanned by `scrape`.
type Discover struct {
	Pages      []string `toml:"pages,omitempty"`
	Known      []string `toml:"known,omitempty"`
	Extensions []string `toml:"extensions,omitempty"`
}

// Asset is one [[asset]] table.
type Asset struct {
	Source string `toml:"source"`
	Name   string `toml:"name,omitempty"`
}

// Duration is a time.Duration written as a string ("1s", "250ms").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return goerr.Wrap(err, "invalid duration", goerr.V("value", string(text)))
	}
	d.Duration = v
	return nil
}

// New returns an empty Manifest writing into DefaultDestination.
func New() *Manifest {
	return &Manifest{
		Destination: DefaultDestination,
		Options:     Options{Timeout: Duration{syncer.DefaultFetchTimeout}},
	}
}

// Load reads and parses a manifest file from the given path.
// If the file does not exist it returns an empty manifest (no error).
// Unknown keys are rejected.
func Load(path string) (*Manifest, error) {
	m := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, goerr.Wrap(err, "failed to read manifest", goerr.V("path", path))
	}

	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse manifest", goerr.V("path", path))
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, goerr.New("unknown keys in manifest",
			goerr.V("path", path),
			goerr.V("keys", strings.Join(keys, ", ")),
		)
	}

	if m.Destination == "" {
		m.Destination = DefaultDestination
	}
	return m, nil
}

// Save writes the manifest back to the given path atomically.
func (m *Manifest) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return goerr.Wrap(err, "failed to encode manifest")
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write manifest", goerr.V("path", path))
	}
	return nil
}

// Add appends an asset, or renames it when the source is already listed.
// It reports whether an existing entry was updated.
func (m *Manifest) Add(source, name string) bool {
	for i, a := range m.Assets {
		if a.Source == source {
			m.Assets[i].Name = name
			return true
		}
	}
	m.Assets = append(m.Assets, Asset{Source: source, Name: name})
	return false
}

// ErrAssetNotFound is returned by Remove when no asset matches the key.
var ErrAssetNotFound = errors.New("asset not found")

// Removal describes an asset taken out of the manifest.
type Removal struct {
	Asset Asset
	// Name is the destination name the asset was synchronised under.
	Name string
	// Renamed maps the old planned name of each remaining asset whose name
	// shifted after the removal to its new planned name.
	Renamed map[string]string
}

// Remove deletes the first asset whose source, requested name or planned
// destination name equals key.
func (m *Manifest) Remove(key string) (*Removal, error) {
	before, err := m.Names()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to plan asset names")
	}

	idx := -1
	for i, a := range m.Assets {
		if a.Source == key || (a.Name != "" && a.Name == key) || before[i] == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, goerr.Wrap(ErrAssetNotFound, "no asset matches key", goerr.V("key", key))
	}

	removed := m.Assets[idx]
	m.Assets = append(m.Assets[:idx], m.Assets[idx+1:]...)

	after, err := m.Names()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to plan asset names")
	}
	renamed := make(map[string]string)
	for i, name := range after {
		old := before[i]
		if i >= idx {
			old = before[i+1]
		}
		if old != name {
			renamed[old] = name
		}
	}

	return &Removal{Asset: removed, Name: before[idx], Renamed: renamed}, nil
}

// Descriptors returns the [[asset]] entries in file order.
func (m *Manifest) Descriptors() []config.Descriptor {
	descs := make([]config.Descriptor, len(m.Assets))
	for i, a := range m.Assets {
		descs[i] = config.Descriptor{Source: a.Source, Name: a.Name}
	}
	return descs
}

// Names returns the planned destination name of every asset, in file order.
func (m *Manifest) Names() ([]string, error) {
	return config.PlanNames(m.Descriptors())
}

// SortedNames returns the planned names sorted, for completion and listings.
func (m *Manifest) SortedNames() []string {
	names, err := m.Names()
	if err != nil {
		return nil
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return sorted
}

// SyncOptions converts [options] into synchronizer options.
func (m *Manifest) SyncOptions() syncer.Options {
	opts := syncer.Options{
		OverwriteExisting:   m.Options.Overwrite,
		DelayBetweenFetches: m.Options.Delay.Duration,
		MaxRetries:          m.Options.MaxRetries,
		FetchTimeout:        m.Options.Timeout.Duration,
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = syncer.DefaultFetchTimeout
	}
	return opts
}
