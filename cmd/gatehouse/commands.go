package main

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
)

func openStore(cfg *config.Config, logger *observability.Logger) (*postgres.ConnectionManager, *postgres.Store, error) {
	conn := cfg.Storage.Connection()
	conn.ReplicaURLs = nil
	cm, err := postgres.NewConnectionManager(conn, logger)
	if err != nil {
		return nil, nil, err
	}
	return cm, postgres.NewStore(cm.Primary(),
		postgres.WithQueryTimeout(cfg.Storage.QueryTimeout),
		postgres.WithLogger(logger),
	), nil
}

func migrate(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	cm, store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	if err := postgres.Migrate(ctx, cm.Primary(), logger); err != nil {
		return err
	}
	if _, err := applySeed(ctx, cfg, store); err != nil {
		return err
	}
	logger.Info("Migrations and seed applied")
	return nil
}

// issueToken prints a new API token once; only its hash is stored.
func issueToken(ctx context.Context, cfg *config.Config, logger *observability.Logger, args []string) error {
	opts, err := parseIssueTokenFlags(args)
	if err != nil {
		return err
	}

	cm, store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	userID, err := store.EnsureUser(ctx, opts.subject, opts.email)
	if err != nil {
		return err
	}
	if opts.role != "" {
		if err := store.AssignUserRoleByName(ctx, userID, opts.role); err != nil {
			return err
		}
	}
	token, hash, prefix, err := auth.NewTokenGenerator(auth.APITokenPrefix).Generate()
	if err != nil {
		return err
	}
	if _, err := store.CreateAPIToken(ctx, userID, opts.name, hash, prefix, nil); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"prefix":  prefix,
	}).Info("API token issued")
	fmt.Fprintln(os.Stdout, token)
	return nil
}
