package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"roombot/internal/core/services"
	apperrors "roombot/pkg/errors"
	"roombot/pkg/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "roombot",
		Short:         "Chat bot for synchronized media rooms",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringP("config", "c", "configs/config.yaml", "config file path")

	run := newRunCmd()
	root.AddCommand(run, newTokenCmd())
	// Bare "roombot" behaves like "roombot run".
	root.RunE = run.RunE
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfig, "load config")
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Join the configured room and serve commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		scope   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Dashboard.JWTSecret == "" {
				return apperrors.NewConfigError("dashboard.jwt_secret is not set")
			}

			auth := services.NewAuthService(cfg.Dashboard.JWTSecret, cfg.Dashboard.TokenTTL)
			token, err := auth.GenerateToken(subject, scope, ttl)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "generate token")
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject, usually the operator's name")
	cmd.Flags().StringVar(&scope, "scope", services.ScopeRead, "read or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default dashboard.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
