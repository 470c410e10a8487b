package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/schibsted/account-sdk-go/internal/business"
	"github.com/schibsted/account-sdk-go/internal/config"
	"github.com/schibsted/account-sdk-go/pkg/auth"
)

func loadConfig(buildInfo string) (*config.Config, error) {
	defaultValues := map[string]any{}
	cfg := &config.Config{}

	if err := commoncfg.LoadConfig(
		cfg,
		defaultValues,
		"/etc/account-cli",
		"$HOME/.account-cli",
		".",
	); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	// Update Version
	if err := commoncfg.UpdateConfigVersion(
		&cfg.BaseConfig,
		buildInfo,
	); err != nil {
		return nil, fmt.Errorf("updating the version configuration: %w", err)
	}

	return cfg, nil
}

// run loads the configuration, initialises the logger and hands a ready
// authenticator to the command body.
func run(ctx context.Context, buildInfo string, fn func(context.Context, *config.Config, *auth.Authenticator) error) error {
	cfg, err := loadConfig(buildInfo)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := logger.InitAsDefault(cfg.Logger, cfg.Application); err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}

	slogctx.Debug(ctx, "Starting the application", slog.Any("config", cfg))

	authenticator, closeFn, err := business.NewAuthenticator(ctx, cfg)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the authenticator")
	}

	defer closeFn()

	return fn(ctx, cfg, authenticator)
}
