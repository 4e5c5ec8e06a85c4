// srcctl is the operator CLI for a Debsources archive. It reads the same
// environment configuration as the server and prints JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/debsources/debsources/internal/archive"
	"github.com/debsources/debsources/internal/checksum"
	"github.com/debsources/debsources/internal/config"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/registry"
	"github.com/debsources/debsources/internal/registry/postgres"
	"github.com/debsources/debsources/internal/retry"
	"github.com/debsources/debsources/internal/version"
)

// store is what the CLI needs from the registry database.
type store interface {
	registry.Registry
	checksum.Store
	Close() error
}

// app carries the collaborators every command is built from. Tests replace
// loadConfig and openStore to run against an in-memory registry.
type app struct {
	out        io.Writer
	loadConfig func() (*config.Config, error)
	openStore  func(ctx context.Context, cfg *config.Config) (store, error)
	retry      retry.Config
}

func newApp(out io.Writer) *app {
	return &app{
		out:        out,
		loadConfig: config.Load,
		openStore: func(_ context.Context, cfg *config.Config) (store, error) {
			return postgres.New(cfg.DatabaseURL)
		},
		retry: retry.DefaultConfig(),
	}
}

func main() {
	logging.InitDefault()
	defer logging.Sync()

	if err := newRootCommand(newApp(os.Stdout)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCommand creates the `srcctl` command tree.
func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "srcctl",
		Short: "Inspect a Debsources source archive",
		Long: `Inspect a Debsources source archive from the command line.

Configuration is read from the environment (DATABASE_URL, SOURCES_DIR,
VERSION_SCHEME, ...), the same as the server.

Examples:
  srcctl versions acl
  srcctl resolve acl/latest/doc
  srcctl ls acl/2.2.49-4
  srcctl inspect acl/2.2.49-4/doc/COPYING
  srcctl sha256 e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)

	root.AddCommand(
		newResolveCommand(a),
		newLsCommand(a),
		newInspectCommand(a),
		newVersionsCommand(a),
		newSHA256Command(a),
		newMigrateCommand(a),
		newAdminTokenCommand(a),
	)
	return root
}

// session is an opened archive for the duration of one command.
type session struct {
	cfg      *config.Config
	store    store
	resolver *archive.Resolver
}

func (s *session) Close() {
	s.resolver.Close()
	s.store.Close()
}

func (a *app) open(ctx context.Context) (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	versions, err := version.ForScheme(cfg.VersionScheme)
	if err != nil {
		return nil, err
	}

	st, err := retry.DoWithResult(ctx, a.retry, func() (store, error) {
		return a.openStore(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}

	resolver, err := archive.NewResolver(cfg.SourcesDir, st, versions)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &session{cfg: cfg, store: st, resolver: resolver}, nil
}

// resolve resolves addr, following a "latest" redirect once.
func (a *app) resolve(ctx context.Context, s *session, addr archive.Address) (*archive.Location, error) {
	res, err := retry.DoWithResult(ctx, a.retry, func() (archive.Resolution, error) {
		return s.resolver.Resolve(ctx, addr)
	})
	if err != nil {
		return nil, err
	}
	if !res.IsRedirect() {
		return res.Location, nil
	}

	res, err = retry.DoWithResult(ctx, a.retry, func() (archive.Resolution, error) {
		return s.resolver.Resolve(ctx, *res.Redirect)
	})
	if err != nil {
		return nil, err
	}
	if res.IsRedirect() {
		return nil, fmt.Errorf("%s: unexpected redirect", addr)
	}
	return res.Location, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
