package cli

import (
	"path/filepath"

	"github.com/cbout22/assetsync/internal/manifest"
	"github.com/cbout22/assetsync/internal/syncer"
)

// CheckStatus describes the sync status of a single asset.
type CheckStatus int

const (
	CheckOK               CheckStatus = iota // File exists, lock matches
	CheckNeverSynced                         // Not in lock, not on disk
	CheckFileMissing                         // In lock but file deleted
	CheckNotInLock                           // File exists but no lock entry
	CheckSourceChanged                       // Lock source differs from manifest source
	CheckChecksumMismatch                    // File content differs from the lock checksum
)

func (s CheckStatus) String() string {
	switch s {
	case CheckOK:
		return "ok"
	case CheckNeverSynced:
		return "never-synced"
	case CheckFileMissing:
		return "file-missing"
	case CheckNotInLock:
		return "not-in-lock"
	case CheckSourceChanged:
		return "source-changed"
	case CheckChecksumMismatch:
		return "checksum-mismatch"
	default:
		return "unknown"
	}
}

// CheckResult holds the outcome of checking one asset.
type CheckResult struct {
	Name         string
	Path         string
	Status       CheckStatus
	LockSource   string // source in lock file (empty if not in lock)
	ManifestSrc  string
	LockChecksum string
}

// CheckAssets validates every manifest asset against the lock file and the
// destination directory. It reads state through its arguments only.
func CheckAssets(m *manifest.Manifest, lock *manifest.LockFile, dest string, fs syncer.FileSystem) ([]CheckResult, error) {
	names, err := m.Names()
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, 0, len(names))
	for i, a := range m.Assets {
		name := names[i]
		path := filepath.Join(dest, name)

		fileExists := fs.Exists(path)
		entry, locked := lock.Get(name)

		var status CheckStatus
		switch {
		case !fileExists && !locked:
			status = CheckNeverSynced
		case !fileExists && locked:
			status = CheckFileMissing
		case fileExists && !locked:
			status = CheckNotInLock
		case entry.Source != a.Source:
			status = CheckSourceChanged
		default:
			status = CheckOK
			data, err := fs.ReadFile(path)
			if err != nil || manifest.Checksum(data) != entry.Checksum {
				status = CheckChecksumMismatch
			}
		}

		results = append(results, CheckResult{
			Name:         name,
			Path:         path,
			Status:       status,
			LockSource:   entry.Source,
			ManifestSrc:  a.Source,
			LockChecksum: entry.Checksum,
		})
	}

	return results, nil
}
