package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/config"
	"github.com/phrazzld/quill-api/internal/credits"
	"github.com/phrazzld/quill-api/internal/platform/postgres"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/phrazzld/quill-api/internal/service/auth"
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Every subcommand loads and validates
// the full configuration before doing anything else.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "quill",
		Short:         "Batch content rewrite service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default: ./config.yaml if present)")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newReconcileCmd(&configPath),
		newGrantCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return root
}

// bootstrap loads configuration and installs the logger.
func bootstrap(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := setupAppLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	logConfig(log, cfg)
	return cfg, log, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the rewrite workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := setupAppDatabase(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			deps, err := newPostgresDeps(ctx, cfg, log, db)
			if err != nil {
				_ = db.Close()
				return err
			}
			app, err := newApplication(cfg, log, db, deps)
			if err != nil {
				_ = db.Close()
				return err
			}
			return app.Run(ctx)
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [" + strings.Join(migrationCommands, "|") + "]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cfg, args[0], log)
		},
	}
}

// withAccounts opens the database and runs fn with the credit store and an
// account service built on it.
func withAccounts(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	fn func(creditStore *postgres.PostgresCreditStore, accounts service.AccountService) error,
) error {
	db, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	creditStore := postgres.NewPostgresCreditStore(db)
	ledger, err := credits.NewLedger(creditStore, log)
	if err != nil {
		return err
	}
	accounts, err := service.NewAccountService(postgres.NewPostgresUserStore(db), ledger, cfg.Credits.SignupGrant, log)
	if err != nil {
		return err
	}
	return fn(creditStore, accounts)
}

func newReconcileCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare every stored balance with the sum of its ledger",
		Long: `Audits each owner's balance against the sum of its ledger rows and
prints the owners that disagree as JSON lines. Exits non-zero when any
balance is inconsistent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			return withAccounts(cmd.Context(), cfg, log,
				func(creditStore *postgres.PostgresCreditStore, accounts service.AccountService) error {
					reports, err := reconcileBalances(cmd.Context(), creditStore, accounts, cfg.Credits.AuditConcurrency, log)
					if err != nil {
						return err
					}
					return reportInconsistencies(cmd, reports)
				})
		},
	}
}

// reportInconsistencies writes one JSON line per report and fails when
// there is at least one.
func reportInconsistencies(cmd *cobra.Command, reports []credits.AuditReport) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, report := range reports {
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	if len(reports) > 0 {
		return fmt.Errorf("%d inconsistent balance(s)", len(reports))
	}
	return nil
}

func newGrantCmd(configPath *string) *cobra.Command {
	var (
		owner  string
		amount int
		reason string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Add credits to an owner's balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("invalid --owner: %w", err)
			}
			cfg, log, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			return withAccounts(cmd.Context(), cfg, log,
				func(_ *postgres.PostgresCreditStore, accounts service.AccountService) error {
					balance, err := accounts.Grant(cmd.Context(), ownerID, amount, reason)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "owner %s balance %d\n", ownerID, balance)
					return err
				})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID")
	cmd.Flags().IntVar(&amount, "amount", 0, "credits to add")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the ledger row")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		owner string
		email string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(*configPath)
			if err != nil {
				return err
			}
			return issueToken(cmd, cfg.Auth, owner, email)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner ID (random when empty)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	return cmd
}

// issueToken signs a token for owner and prints it.
func issueToken(cmd *cobra.Command, authCfg config.AuthConfig, owner, email string) error {
	ownerID := uuid.New()
	if owner != "" {
		var err error
		if ownerID, err = uuid.Parse(owner); err != nil {
			return fmt.Errorf("invalid --owner: %w", err)
		}
	}

	jwtService, err := auth.NewJWTService(authCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	token, err := jwtService.GenerateToken(cmd.Context(), ownerID, email)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
