package cli

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/cbout22/assetsync/internal/auth"
	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/discover"
	"github.com/cbout22/assetsync/internal/fetch"
)

// newScrapeCmd creates the `scrape` command.
// Usage: assetsync scrape [--dry-run] [--overwrite] [--dest dir]
func newScrapeCmd(opts *globalOptions) *cobra.Command {
	var (
		flags  syncFlags
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Discover images on the site and download them",
		Long: `Fetches every page listed in [discover].pages (relative to base_url),
collects the images they reference (<img src>, srcset, inline background
images) on the same host, adds [discover].known paths and the manifest's
[[asset]] entries, then downloads the lot.

With --dry-run the discovered images are listed and nothing is written.`,
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

			web, err := newWebFetcher(s.manifest, creds)
			if err != nil {
				return err
			}
			t, err := newTransport(cmd.Context(), s.manifest, creds, s.manifest.Descriptors())
			if err != nil {
				return err
			}
			defer t.Close()

			return runScrapeWith(cmd.Context(), s, web, t, flags, dryRun)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List discovered images without downloading")

	return cmd
}

// runScrapeWith is the testable core of the scrape command. pages fetches
// the HTML pages, f the assets.
func runScrapeWith(ctx context.Context, s *session, pages, f fetch.Fetcher, flags syncFlags, dryRun bool) error {
	if s.manifest.BaseURL == "" {
		return fmt.Errorf("scrape needs base_url in %s", s.ws.manifestPath)
	}
	base, err := parseAbsURL(s.manifest.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}

	var dopts []discover.Option
	dopts = append(dopts, discover.WithLogger(s.logger))
	if exts := s.manifest.Discover.Extensions; len(exts) > 0 {
		dopts = append(dopts, discover.WithExtensions(exts))
	}

	pageList := s.manifest.Discover.Pages
	if len(pageList) == 0 {
		pageList = []string{"/"}
	}

	fmt.Fprintf(s.out, "🔍 Scanning %d page(s) on %s...\n", len(pageList), base.Host)
	found, err := discover.New(pages, dopts...).Discover(ctx, base, pageList, s.manifest.Discover.Known)
	if err != nil {
		return err
	}

	found = withoutDeclared(found, s.manifest.Descriptors(), base)
	descs := append(s.manifest.Descriptors(), found...)
	fmt.Fprintf(s.out, "🖼️  Found %d image(s), %d declared asset(s)\n\n", len(found), len(s.manifest.Assets))

	if dryRun {
		for _, d := range found {
			fmt.Fprintf(s.out, "  %s\n", d.Source)
		}
		return nil
	}
	if len(descs) == 0 {
		fmt.Fprintln(s.out, "📋 Nothing to download.")
		return nil
	}

	return s.synchronize(ctx, f, descs, flags)
}

// withoutDeclared drops discovered images whose URL is already declared in
// the manifest, comparing sources resolved against base.
func withoutDeclared(found, declared []config.Descriptor, base *url.URL) []config.Descriptor {
	seen := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		seen[resolveSource(base, d.Source)] = struct{}{}
	}

	out := found[:0:0]
	for _, d := range found {
		if _, ok := seen[resolveSource(base, d.Source)]; ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

func resolveSource(base *url.URL, src string) string {
	u, err := base.Parse(src)
	if err != nil {
		return src
	}
	return u.String()
}
