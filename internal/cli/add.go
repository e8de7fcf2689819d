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

// newAddCmd creates the `add` command.
// Usage: assetsync add <source> [name]
func newAddCmd(opts *globalOptions) *cobra.Command {
	var noFetch bool

	cmd := &cobra.Command{
		Use:   "add <source> [name]",
		Short: "Add an asset to the manifest and download it",
		Long: `Adds an [[asset]] entry to the manifest and downloads it into the
destination directory. The manifest is only updated when the download
succeeds, unless --no-fetch is given.

Examples:
  assetsync add https://www.example.com/images/Playground.jpg
  assetsync add /images/logo.png daycare-logo.png
  assetsync add r2://gallery/hero.webp`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			var name string
			if len(args) == 2 {
				name = args[1]
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if noFetch {
				return runAddWith(cmd.Context(), s, nil, source, name)
			}

			creds, err := auth.Load(auth.DefaultEnvFiles...)
			if err != nil {
				return err
			}
			t, err := newTransport(cmd.Context(), s.manifest, creds, []config.Descriptor{{Source: source}})
			if err != nil {
				return err
			}
			defer t.Close()

			return runAddWith(cmd.Context(), s, t, source, name)
		},
	}
	cmd.Flags().BoolVar(&noFetch, "no-fetch", false, "Only edit the manifest")

	return cmd
}

// runAddWith is the testable core of the add command. A nil fetcher only
// edits the manifest.
func runAddWith(ctx context.Context, s *session, f fetch.Fetcher, source, name string) error {
	if source == "" {
		return config.ErrEmptySource
	}
	if name != "" {
		if _, err := config.SanitizeName(name); err != nil {
			return err
		}
	}

	updated := s.manifest.Add(source, name)
	names, err := s.manifest.Names()
	if err != nil {
		return err
	}
	planned := plannedName(s, source, names)

	if f != nil {
		fmt.Fprintf(s.out, "📦 Adding %s from %s...\n", planned, source)

		sync := syncer.New(f,
			syncer.WithOptions(s.manifest.SyncOptions()),
			syncer.WithLogger(s.logger),
			syncer.WithRecorder(s.lock),
		)
		report, err := sync.Synchronize(ctx, []config.Descriptor{{Source: source, Name: planned}}, s.destination(""))
		if err != nil {
			return err
		}

		res := report.Results[0]
		printResult(s.out, res)
		if res.Outcome == syncer.OutcomeFailed {
			return fmt.Errorf("failed to download: %w", res.Err)
		}
		if err := s.saveLock(); err != nil {
			return err
		}
	}

	if err := s.saveManifest(); err != nil {
		return err
	}

	verb := "Added"
	if updated {
		verb = "Updated"
	}
	fmt.Fprintf(s.out, "✅ %s %s in %s\n", verb, planned, s.ws.manifestPath)
	return nil
}

func plannedName(s *session, source string, names []string) string {
	for i, a := range s.manifest.Assets {
		if a.Source == source {
			return names[i]
		}
	}
	return ""
}
