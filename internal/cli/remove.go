package cli

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbout22/assetsync/internal/manifest"
	"github.com/cbout22/assetsync/internal/syncer"
)

// newRemoveCmd creates the `remove` command.
// Usage: assetsync remove <name|source>
func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name|source>",
		Aliases: []string{"rm"},
		Short:   "Remove an asset from the manifest and delete its local file",
		Long: `Removes an [[asset]] entry from the manifest, deletes the corresponding
file from the destination directory and drops its lock file entry.

Example:
  assetsync remove playground.jpg`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return resolveManifestName(opts.manifestPath, toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			return runRemoveWith(s, syncer.OSFileSystem{}, args[0])
		},
	}
}

// runRemoveWith is the testable core of the remove command. Assets whose
// planned name shifts because of the removal get their file and lock entry
// moved to the new name.
func runRemoveWith(s *session, fs syncer.FileSystem, key string) error {
	rm, err := s.manifest.Remove(key)
	if errors.Is(err, manifest.ErrAssetNotFound) {
		return fmt.Errorf("%s not found in %s (assets: %s)", key, s.ws.manifestPath, strings.Join(s.manifest.SortedNames(), ", "))
	}
	if err != nil {
		return err
	}

	dest := s.destination("")
	target := filepath.Join(dest, rm.Name)
	if err := fs.Remove(target); err != nil {
		return fmt.Errorf("deleting %s: %w", target, err)
	}
	s.lock.Remove(rm.Name)

	if err := renameFiles(fs, dest, rm.Renamed); err != nil {
		return err
	}
	s.lock.Rename(rm.Renamed)

	if err := s.saveManifest(); err != nil {
		return err
	}
	if err := s.saveLock(); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "🗑️  Removed %s (%s) from %s\n", rm.Name, rm.Asset.Source, s.ws.manifestPath)
	fmt.Fprintf(s.out, "🧹 Deleted %s\n", target)
	for _, from := range slices.Sorted(maps.Keys(rm.Renamed)) {
		fmt.Fprintf(s.out, "🔀 Renamed %s -> %s\n", from, rm.Renamed[from])
	}
	return nil
}

// renameFiles moves files under dir. Every source is read before anything is
// written so chained renames do not clobber each other. Missing files are
// skipped.
func renameFiles(fs syncer.FileSystem, dir string, renamed map[string]string) error {
	contents := make(map[string][]byte, len(renamed))
	for from := range renamed {
		path := filepath.Join(dir, from)
		if !fs.Exists(path) {
			continue
		}
		data, err := fs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		contents[from] = data
	}

	for from := range contents {
		path := filepath.Join(dir, from)
		if err := fs.Remove(path); err != nil {
			return fmt.Errorf("deleting %s: %w", path, err)
		}
	}
	for from, data := range contents {
		path := filepath.Join(dir, renamed[from])
		if err := fs.WriteAtomic(path, data); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}
