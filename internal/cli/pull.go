package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbout22/assetsync/internal/auth"
	"github.com/cbout22/assetsync/internal/fetch"
	"github.com/cbout22/assetsync/internal/storage"
)

// newPullCmd creates the `pull` command.
// Usage: assetsync pull [--prefix p] [--public] [--overwrite] [--dest dir]
func newPullCmd(opts *globalOptions) *cobra.Command {
	var (
		flags  syncFlags
		prefix string
		public bool
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download every object of the storage bucket under a prefix",
		Long: `Lists the bucket configured in [storage] (R2 credentials come from
.env.local / .env, GCS from GOOGLE_APPLICATION_CREDENTIALS) and downloads
every object below the prefix. Object keys keep their path below the prefix
as file name.

With --public, objects the API cannot read are retried through the bucket's
public URL (R2_CDN_URL, R2_PUBLIC_URL or the r2.dev domain).`,
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

			bucket, closeBucket, err := newBucket(cmd.Context(), s.manifest, creds)
			if err != nil {
				return err
			}
			defer closeBucket()

			var f fetch.Fetcher = bucket
			if public {
				web, err := newWebFetcher(s.manifest, creds)
				if err != nil {
					return err
				}
				f = fetch.Chain{bucket, publicFallback(web, creds)}
			}

			if !cmd.Flags().Changed("prefix") {
				prefix = s.manifest.Storage.Prefix
			}
			return runPullWith(cmd.Context(), s, bucket, f, prefix, flags)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix to list (defaults to [storage].prefix)")
	cmd.Flags().BoolVar(&public, "public", false, "Fall back to the bucket's public URL")

	return cmd
}

// runPullWith is the testable core of the pull command. lister enumerates
// the bucket, f downloads each key.
func runPullWith(ctx context.Context, s *session, lister storage.Lister, f fetch.Fetcher, prefix string, flags syncFlags) error {
	fmt.Fprintf(s.out, "📂 Listing objects under %q...\n", prefix)

	objects, err := lister.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("listing bucket: %w", err)
	}
	if len(objects) == 0 {
		fmt.Fprintln(s.out, "📋 No objects found, nothing to pull.")
		return nil
	}

	var total int64
	for _, o := range objects {
		total += o.Size
	}
	fmt.Fprintf(s.out, "📦 %d object(s), %s\n\n", len(objects), formatBytes(total))

	return s.synchronize(ctx, f, storage.Descriptors(objects, prefix), flags)
}
