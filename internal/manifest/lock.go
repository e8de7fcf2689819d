package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"sort"
	"time"

	"github.com/google/renameio/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cbout22/assetsync/internal/syncer"
)

const DefaultLockFile = ".assetsync.lock"

// LockFile is the ledger of assets written by assetsync. `check` compares it
// with the manifest and the files on disk to detect drift.
type LockFile struct {
	// Version of the lock file format.
	Version int `json:"version"`
	// Entries keyed by destination file name.
	Entries map[string]LockEntry `json:"entries"`
}

// LockEntry records the state of one synchronised file.
type LockEntry struct {
	Name     string `json:"name"`
	Source   string `json:"source"`
	Checksum string `json:"checksum"`  // SHA-256 of the written content
	Size     int64  `json:"size"`
	SyncedAt string `json:"synced_at"` // RFC 3339
}

var _ syncer.Recorder = (*LockFile)(nil)

// NewLockFile returns an initialised empty lock file.
func NewLockFile() *LockFile {
	return &LockFile{
		Version: 1,
		Entries: make(map[string]LockEntry),
	}
}

// LoadLock reads and parses a lock file.
// Returns an empty lock file if the file does not exist.
func LoadLock(path string) (*LockFile, error) {
	lf := NewLockFile()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, goerr.Wrap(err, "failed to read lock file", goerr.V("path", path))
	}

	if err := json.Unmarshal(data, lf); err != nil {
		return nil, goerr.Wrap(err, "failed to parse lock file", goerr.V("path", path))
	}

	if lf.Entries == nil {
		lf.Entries = make(map[string]LockEntry)
	}

	return lf, nil
}

// Save writes the lock file to the given path.
func (lf *LockFile) Save(path string) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode lock file")
	}

	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write lock file", goerr.V("path", path))
	}

	return nil
}

// Set records or updates the entry of a written file.
func (lf *LockFile) Set(name, source string, content []byte) {
	lf.Entries[name] = LockEntry{
		Name:     name,
		Source:   source,
		Checksum: Checksum(content),
		Size:     int64(len(content)),
		SyncedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Record implements syncer.Recorder.
func (lf *LockFile) Record(res syncer.Result, data []byte) error {
	lf.Set(res.Name, res.Descriptor.Source, data)
	return nil
}

// Get retrieves a lock entry, if it exists.
func (lf *LockFile) Get(name string) (LockEntry, bool) {
	e, ok := lf.Entries[name]
	return e, ok
}

// Remove deletes a lock entry.
func (lf *LockFile) Remove(name string) {
	delete(lf.Entries, name)
}

// Rename moves entries from their old name to the new one. All moves apply
// at once, so a chain such as a->b, b->c keeps both entries.
func (lf *LockFile) Rename(renamed map[string]string) {
	moved := make(map[string]LockEntry, len(renamed))
	for from, to := range renamed {
		e, ok := lf.Entries[from]
		if !ok {
			continue
		}
		e.Name = to
		moved[to] = e
	}
	for from := range renamed {
		delete(lf.Entries, from)
	}
	maps.Copy(lf.Entries, moved)
}

// Names returns the recorded file names, sorted.
func (lf *LockFile) Names() []string {
	names := make([]string, 0, len(lf.Entries))
	for n := range lf.Entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Checksum returns the hex-encoded SHA-256 of the given data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}
