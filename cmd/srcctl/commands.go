package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/debsources/debsources/internal/archive"
	"github.com/debsources/debsources/internal/auth"
	"github.com/debsources/debsources/internal/checksum"
	"github.com/debsources/debsources/internal/retry"
	"github.com/debsources/debsources/pkg/protocol"
)

type resolveOutput struct {
	Package      string        `json:"package"`
	Version      string        `json:"version"`
	Path         string        `json:"path"`
	Type         string        `json:"type"`
	PhysicalPath string        `json:"physical_path"`
	VCS          *protocol.VCS `json:"vcs,omitempty"`
}

// newResolveCommand creates the `srcctl resolve` command.
func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <package>/<version>[/<path>...]",
		Short: "Resolve an address to a location in the archive",
		Long: `Resolve an address to a location in the archive.

A "latest" version is replaced by the highest known version of the package.
Symbolic links anywhere on the path are refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := archive.ParseAddress(args[0])
			if err != nil {
				return err
			}
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			loc, err := a.resolve(cmd.Context(), s, addr)
			if err != nil {
				return err
			}
			return a.printJSON(resolveOutput{
				Package:      loc.Package,
				Version:      loc.Version,
				Path:         loc.SubPath(),
				Type:         loc.Kind.String(),
				PhysicalPath: loc.PhysicalPath,
				VCS:          vcsOutput(loc),
			})
		},
	}
}

// newLsCommand creates the `srcctl ls` command.
func newLsCommand(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ls <package>/<version>[/<path>...]",
		Short: "List a directory in the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := archive.ParseAddress(args[0])
			if err != nil {
				return err
			}
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			loc, err := a.resolve(cmd.Context(), s, addr)
			if err != nil {
				return err
			}

			lister := archive.NewLister(s.cfg.InternalDirs)
			var entries []archive.Entry
			if all {
				entries, err = lister.List(loc, false)
			} else {
				entries, err = lister.ListLocation(loc)
			}
			if err != nil {
				return err
			}

			out := make([]protocol.DirEntry, 0, len(entries))
			for _, e := range entries {
				out = append(out, protocol.DirEntry{Name: e.Name, Type: e.Kind.String()})
			}
			return a.printJSON(out)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include internal bookkeeping directories")
	return cmd
}

// newInspectCommand creates the `srcctl inspect` command.
func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <package>/<version>/<path>...",
		Short: "Show file metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := archive.ParseAddress(args[0])
			if err != nil {
				return err
			}
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			loc, err := a.resolve(cmd.Context(), s, addr)
			if err != nil {
				return err
			}
			meta, err := archive.NewInspector(s.cfg.SourcesStatic, s.cfg.SniffBytes).Inspect(loc)
			if err != nil {
				return err
			}
			return a.printJSON(protocol.FileResponse{
				Type:        loc.Kind.String(),
				Package:     loc.Package,
				Version:     loc.Version,
				Path:        loc.SubPath(),
				Name:        loc.Name(),
				MimeType:    meta.MimeType,
				IsText:      meta.IsText,
				Size:        meta.Size,
				Permissions: meta.Permissions(),
				RawURL:      meta.RawURL,
				VCS:         vcsOutput(loc),
			})
		},
	}
}

// newVersionsCommand creates the `srcctl versions` command.
func newVersionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <package>",
		Short: "List the known versions of a package, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			vs, err := retry.DoWithResult(cmd.Context(), a.retry, func() ([]protocol.VersionInfo, error) {
				vs, err := s.resolver.Versions(cmd.Context(), args[0])
				if err != nil {
					return nil, err
				}
				out := make([]protocol.VersionInfo, 0, len(vs))
				for _, v := range vs {
					info := protocol.VersionInfo{Version: v.Number}
					if v.VCS != nil {
						info.VCS = &protocol.VCS{Type: v.VCS.Type, Browser: v.VCS.Browser}
					}
					out = append(out, info)
				}
				return out, nil
			})
			if err != nil {
				return err
			}
			return a.printJSON(vs)
		},
	}
}

// newSHA256Command creates the `srcctl sha256` command.
func newSHA256Command(a *app) *cobra.Command {
	var pkg string

	cmd := &cobra.Command{
		Use:   "sha256 <checksum>",
		Short: "Find every file in the archive with the given SHA-256",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checksum.Validate(args[0]); err != nil {
				return err
			}
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			idx := checksum.NewIndex(s.store)
			occ, err := retry.DoWithResult(cmd.Context(), a.retry, func() ([]checksum.Occurrence, error) {
				return idx.Lookup(cmd.Context(), args[0])
			})
			if err != nil {
				return err
			}

			results := make([]protocol.Occurrence, 0, len(occ))
			for _, o := range occ {
				if pkg != "" && o.Package != pkg {
					continue
				}
				results = append(results, protocol.Occurrence{Package: o.Package, Version: o.Version, Path: o.Path})
			}
			return a.printJSON(protocol.ChecksumResponse{
				SHA256:  args[0],
				Count:   len(results),
				Results: results,
			})
		},
	}

	cmd.Flags().StringVarP(&pkg, "package", "p", "", "only report occurrences in this package")
	return cmd
}

// newMigrateCommand creates the `srcctl migrate` command.
func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <dir>",
		Short: "Apply the SQL migrations in dir to the registry database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			st, err := retry.DoWithResult(cmd.Context(), a.retry, func() (store, error) {
				return a.openStore(cmd.Context(), cfg)
			})
			if err != nil {
				return err
			}
			defer st.Close()

			m, ok := st.(interface{ Migrate(dir string) error })
			if !ok {
				return errors.New("registry does not support migrations")
			}
			if err := m.Migrate(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

// newAdminTokenCommand creates the `srcctl admin-token` command.
func newAdminTokenCommand(a *app) *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "admin-token <username>",
		Short: "Issue an admin token for the server's /api/admin endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("ADMIN_JWT_SECRET")
			}
			if secret == "" {
				return errors.New("ADMIN_JWT_SECRET or --secret is required")
			}
			token, expires, err := auth.New(secret).IssueToken(args[0], ttl)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]string{
				"token":      token,
				"expires_at": expires.UTC().Format(time.RFC3339),
			})
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default $ADMIN_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func vcsOutput(loc *archive.Location) *protocol.VCS {
	if loc.VCS == nil {
		return nil
	}
	return &protocol.VCS{Type: loc.VCS.Type, Browser: loc.VCS.Browser}
}
