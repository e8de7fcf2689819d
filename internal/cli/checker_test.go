package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cbout22/assetsync/internal/manifest"
	"github.com/cbout22/assetsync/internal/syncer"
)

// testFileSystem is a minimal in-memory FileSystem for checker tests.
type testFileSystem struct {
	files map[string][]byte // paths that "exist"
}

var _ syncer.FileSystem = (*testFileSystem)(nil)

func newTestFileSystem(files map[string]string) *testFileSystem {
	fs := &testFileSystem{files: make(map[string][]byte)}
	for p, content := range files {
		fs.files[p] = []byte(content)
	}
	return fs
}

func (f *testFileSystem) MkdirAll(path string) error { return nil }

func (f *testFileSystem) Exists(path string) bool {
	_, ok := f.files[path]
	return ok
}

func (f *testFileSystem) WriteAtomic(path string, data []byte) error {
	f.files[path] = data
	return nil
}

func (f *testFileSystem) ReadFile(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (f *testFileSystem) Remove(path string) error {
	delete(f.files, path)
	return nil
}

const checkDest = "/site/public/images"

func checkManifest(assets ...manifest.Asset) *manifest.Manifest {
	m := manifest.New()
	m.Assets = assets
	return m
}

func TestCheckAssets_AllSynced(t *testing.T) {
	t.Parallel()

	m := checkManifest(
		manifest.Asset{Source: "https://www.example.com/images/Playground.jpg"},
		manifest.Asset{Source: "r2://gallery/hero.webp", Name: "banner.webp"},
	)

	lock := manifest.NewLockFile()
	lock.Set("playground.jpg", "https://www.example.com/images/Playground.jpg", []byte("x"))
	lock.Set("banner.webp", "r2://gallery/hero.webp", []byte("y"))

	fs := newTestFileSystem(map[string]string{
		filepath.Join(checkDest, "playground.jpg"): "x",
		filepath.Join(checkDest, "banner.webp"):    "y",
	})

	results, err := CheckAssets(m, lock, checkDest, fs)
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Status != CheckOK {
			t.Errorf("%s: status = %s, want ok", r.Name, r.Status)
		}
	}
}

func TestCheckAssets_Statuses(t *testing.T) {
	t.Parallel()

	const src = "https://www.example.com/images/logo.png"
	path := filepath.Join(checkDest, "logo.png")

	tests := []struct {
		name   string
		locked string // locked source, empty for no lock entry
		file   string // file content, empty for no file
		want   CheckStatus
	}{
		{name: "never synced", want: CheckNeverSynced},
		{name: "file missing", locked: src, want: CheckFileMissing},
		{name: "not in lock", file: "png", want: CheckNotInLock},
		{name: "source changed", locked: "https://old.example.com/logo.png", file: "png", want: CheckSourceChanged},
		{name: "checksum mismatch", locked: src, file: "edited", want: CheckChecksumMismatch},
		{name: "ok", locked: src, file: "png", want: CheckOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lock := manifest.NewLockFile()
			if tt.locked != "" {
				lock.Set("logo.png", tt.locked, []byte("png"))
			}
			files := map[string]string{}
			if tt.file != "" {
				files[path] = tt.file
			}

			results, err := CheckAssets(checkManifest(manifest.Asset{Source: src}), lock, checkDest, newTestFileSystem(files))
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != 1 {
				t.Fatalf("got %d results, want 1", len(results))
			}
			if results[0].Status != tt.want {
				t.Errorf("status = %s, want %s", results[0].Status, tt.want)
			}
			if results[0].Path != path {
				t.Errorf("path = %q, want %q", results[0].Path, path)
			}
		})
	}
}

func TestCheckAssets_CollidingNames(t *testing.T) {
	t.Parallel()

	m := checkManifest(
		manifest.Asset{Source: "https://a.example.com/logo.png"},
		manifest.Asset{Source: "https://b.example.com/logo.png"},
	)
	lock := manifest.NewLockFile()
	lock.Set("logo-1.png", "https://b.example.com/logo.png", []byte("b"))
	fs := newTestFileSystem(map[string]string{filepath.Join(checkDest, "logo-1.png"): "b"})

	results, err := CheckAssets(m, lock, checkDest, fs)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Name != "logo.png" || results[0].Status != CheckNeverSynced {
		t.Errorf("first = %s %s, want logo.png never-synced", results[0].Name, results[0].Status)
	}
	if results[1].Name != "logo-1.png" || results[1].Status != CheckOK {
		t.Errorf("second = %s %s, want logo-1.png ok", results[1].Name, results[1].Status)
	}
}

func TestCheckAssets_InvalidManifest(t *testing.T) {
	t.Parallel()

	m := checkManifest(manifest.Asset{Source: ""})
	if _, err := CheckAssets(m, manifest.NewLockFile(), checkDest, newTestFileSystem(nil)); err == nil {
		t.Error("expected error for an asset without source")
	}
}

func TestCheckStatus_String(t *testing.T) {
	t.Parallel()

	want := map[CheckStatus]string{
		CheckOK:               "ok",
		CheckNeverSynced:      "never-synced",
		CheckFileMissing:      "file-missing",
		CheckNotInLock:        "not-in-lock",
		CheckSourceChanged:    "source-changed",
		CheckChecksumMismatch: "checksum-mismatch",
		CheckStatus(99):       "unknown",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("CheckStatus(%d).String() = %q, want %q", int(s), s.String(), w)
		}
	}
}
