package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cbout22/assetsync/internal/config"
	"github.com/cbout22/assetsync/internal/manifest"
)

// version is set at build time via -ldflags.
var version = "dev"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	manifestPath string
	lockPath     string
	log          config.Logger
}

// workspace returns the files a command reads and writes. Relative
// destinations are resolved against the manifest's directory.
func (o *globalOptions) workspace() workspace {
	return workspace{
		manifestPath: o.manifestPath,
		lockPath:     o.lockPath,
		rootDir:      filepath.Dir(o.manifestPath),
	}
}

func (o *globalOptions) open(cmd *cobra.Command) (*session, error) {
	logger, err := o.log.Configure(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return openSession(o.workspace(), cmd.OutOrStdout(), logger)
}

// NewRootCmd creates the top-level `assetsync` command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "assetsync",
		Short: "Fetch a declared set of remote images into a local directory",
		Long: `assetsync downloads the images declared in an assets.toml manifest from
websites, mirrors and object storage (Cloudflare R2, S3, GCS) into a local
directory. Files already present are skipped, transient failures are retried
and every run ends with a per-asset report.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.manifestPath, "manifest", manifest.DefaultManifestFile, "Path to the manifest")
	root.PersistentFlags().StringVar(&opts.lockPath, "lock", manifest.DefaultLockFile, "Path to the lock file")
	opts.log.Bind(root)

	root.AddCommand(newSyncCmd(opts))
	root.AddCommand(newScrapeCmd(opts))
	root.AddCommand(newPullCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newAddCmd(opts))
	root.AddCommand(newRemoveCmd(opts))

	return root
}

// Execute runs the root command. An interrupt stops the run between two
// assets.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// workspace locates the manifest, the lock file and the directory relative
// destinations are resolved against.
type workspace struct {
	manifestPath string
	lockPath     string
	rootDir      string
}

// session is the loaded state every command works on.
type session struct {
	ws       workspace
	manifest *manifest.Manifest
	lock     *manifest.LockFile
	out      io.Writer
	logger   *slog.Logger
}

func openSession(ws workspace, out io.Writer, logger *slog.Logger) (*session, error) {
	m, err := manifest.Load(ws.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}

	lock, err := manifest.LoadLock(ws.lockPath)
	if err != nil {
		return nil, fmt.Errorf("loading lock file: %w", err)
	}

	return &session{ws: ws, manifest: m, lock: lock, out: out, logger: logger}, nil
}

// destination resolves dir (the manifest destination when empty) against
// the workspace root.
func (s *session) destination(dir string) string {
	if dir == "" {
		dir = s.manifest.Destination
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(s.ws.rootDir, dir)
}

func (s *session) saveLock() error {
	if err := s.lock.Save(s.ws.lockPath); err != nil {
		return fmt.Errorf("saving lock file: %w", err)
	}
	return nil
}

func (s *session) saveManifest() error {
	if err := s.manifest.Save(s.ws.manifestPath); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}
