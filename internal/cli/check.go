package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbout22/assetsync/internal/syncer"
)

// newCheckCmd creates the `check` command.
// Usage: assetsync check [--strict]
func newCheckCmd(opts *globalOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check if local files are in sync with the manifest",
		Long: `Validates that every [[asset]] of the manifest has a local file that
matches the lock file: same source, same SHA-256 checksum. No network access
is needed, which makes it suitable for CI/CD pipelines.

With --strict, the command exits with a non-zero code if any asset is
missing or stale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			return runCheckWith(s, syncer.OSFileSystem{}, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with error code if assets are stale or missing")

	return cmd
}

// runCheckWith is the testable core of the check command.
func runCheckWith(s *session, fs syncer.FileSystem, strict bool) error {
	if len(s.manifest.Assets) == 0 {
		fmt.Fprintln(s.out, "📋 No assets in the manifest, nothing to check.")
		return nil
	}

	results, err := CheckAssets(s.manifest, s.lock, s.destination(""), fs)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "🔍 Checking %d asset(s)...\n\n", len(results))

	var issues int
	for _, r := range results {
		switch r.Status {
		case CheckOK:
			successColor.Fprintf(s.out, "  ✅ %s ok\n", r.Name)
			continue
		case CheckNeverSynced:
			failedColor.Fprintf(s.out, "  ❌ %s missing (never synced)\n", r.Name)
		case CheckFileMissing:
			failedColor.Fprintf(s.out, "  ❌ %s missing (was synced)\n", r.Name)
		case CheckNotInLock:
			skippedColor.Fprintf(s.out, "  ⚠️  %s exists but is not in the lock file (run 'assetsync sync')\n", r.Name)
		case CheckSourceChanged:
			skippedColor.Fprintf(s.out, "  ⚠️  %s source changed: lock=%s manifest=%s\n", r.Name, r.LockSource, r.ManifestSrc)
		case CheckChecksumMismatch:
			skippedColor.Fprintf(s.out, "  ⚠️  %s content differs from the lock file checksum\n", r.Name)
		}
		issues++
	}

	fmt.Fprintln(s.out)
	if issues > 0 {
		msg := fmt.Sprintf("Found %d issue(s). Run 'assetsync sync --overwrite' to fix.", issues)
		if strict {
			return fmt.Errorf("%s", msg)
		}
		fmt.Fprintf(s.out, "⚠️  %s\n", msg)
	} else {
		fmt.Fprintln(s.out, "✅ All assets are in sync.")
	}
	return nil
}
