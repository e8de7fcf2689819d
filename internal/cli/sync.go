package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbout22/assetsync/internal/auth"
	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/fetch"
	"github.com/cbout22/assetsync/internal/syncer"
)

// syncFlags are the per-run overrides of the manifest [options].
type syncFlags struct {
	overwrite bool
	dest      string
}

func (f *syncFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "Re-download files that already exist")
	cmd.Flags().StringVar(&f.dest, "dest", "", "Destination directory (defaults to the manifest destination)")
}

// newSyncCmd creates the `sync` command.
// Usage: assetsync sync [--overwrite] [--dest dir]
func newSyncCmd(opts *globalOptions) *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download every asset declared in the manifest",
		Long: `Downloads every [[asset]] of the manifest into the destination directory.
Sources may be URLs (relative ones resolve against base_url and fall back to
the mirrors), r2://key or gcs://key object storage keys.

Files already present are skipped unless --overwrite is given. Individual
failures are reported but do not fail the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			creds, err := auth.Load(auth.DefaultEnvFiles...)
			if err != nil {
				return err
			}

			descs := s.manifest.Descriptors()
			t, err := newTransport(cmd.Context(), s.manifest, creds, descs)
			if err != nil {
				return err
			}
			defer t.Close()

			return runSyncWith(cmd.Context(), s, t, flags)
		},
	}
	flags.bind(cmd)

	return cmd
}

// runSyncWith is the testable core of the sync command.
func runSyncWith(ctx context.Context, s *session, f fetch.Fetcher, flags syncFlags) error {
	descs := s.manifest.Descriptors()
	if len(descs) == 0 {
		fmt.Fprintln(s.out, "📋 No assets in the manifest, nothing to sync.")
		return nil
	}

	fmt.Fprintf(s.out, "🔄 Syncing %d asset(s)...\n\n", len(descs))
	return s.synchronize(ctx, f, descs, flags)
}

// synchronize runs the synchronizer over descs, prints the report and saves
// the lock file. Only setup, naming and cancellation errors are returned.
func (s *session) synchronize(ctx context.Context, f fetch.Fetcher, descs []config.Descriptor, flags syncFlags) error {
	opts := s.manifest.SyncOptions()
	if flags.overwrite {
		opts.OverwriteExisting = true
	}

	sync := syncer.New(f,
		syncer.WithOptions(opts),
		syncer.WithLogger(s.logger),
		syncer.WithRecorder(s.lock),
	)

	report, err := sync.Synchronize(ctx, descs, s.destination(flags.dest))
	if report == nil {
		return err
	}

	printReport(s.out, report)
	if saveErr := s.saveLock(); saveErr != nil {
		return saveErr
	}
	return err
}
