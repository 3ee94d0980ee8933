package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bissquit/crisis-room/internal/app"
	"github.com/bissquit/crisis-room/internal/config"
	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/identity/jwt"
	"github.com/bissquit/crisis-room/internal/version"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// rootOptions holds flags shared by all commands.
type rootOptions struct {
	ConfigPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "crisisroom",
		Short:         "Crisis room communication service",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.GitCommit, version.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "Path to the configuration file")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
	)

	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the no-response monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Run()
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				slog.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return application.Shutdown(shutdownCtx)
		},
	}
}

// migrateOptions holds flags for the migrate command.
type migrateOptions struct {
	Source string
	Steps  int
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	opts := migrateOptions{Source: "file://migrations"}

	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return err
			}

			migrator, err := migrate.New(opts.Source, cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer migrator.Close()

			switch args[0] {
			case "up":
				err = migrator.Up()
			case "down":
				if opts.Steps > 0 {
					err = migrator.Steps(-opts.Steps)
				} else {
					err = migrator.Down()
				}
			case "version":
				v, dirty, verr := migrator.Version()
				if errors.Is(verr, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				if verr != nil {
					return fmt.Errorf("read version: %w", verr)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return nil
			}

			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", opts.Source, "Migration source URL")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "Number of migrations to roll back (down only, 0 = all)")

	return cmd
}

// tokenOptions holds flags for the token command.
type tokenOptions struct {
	Subject string
	Role    string
	TTL     time.Duration
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	opts := tokenOptions{Role: string(domain.RoleViewer), TTL: 12 * time.Hour}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with the configured secret",
		Long:  `Issue a bearer token for local use and integration environments.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role := domain.Role(opts.Role)
			if !role.IsValid() {
				return fmt.Errorf("unknown role %q", opts.Role)
			}

			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return err
			}

			token, err := jwt.Sign(jwt.Config{SecretKey: cfg.JWT.SecretKey, Issuer: cfg.JWT.Issuer}, opts.Subject, role,
				jwtlib.RegisteredClaims{
					IssuedAt:  jwtlib.NewNumericDate(time.Now()),
					ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(opts.TTL)),
				})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "User ID placed in the sub claim")
	cmd.Flags().StringVar(&opts.Role, "role", opts.Role, "Role claim: viewer or operator")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", opts.TTL, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
