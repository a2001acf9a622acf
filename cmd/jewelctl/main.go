package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fjod/jewel_cart/internal/config"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/repository"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	app := &cli.App{
		Name:  "jewelctl",
		Usage: "Operate the jewel cart backend: seed the catalog, mint tokens, move orders",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   "configs",
				Usage:   "Directory holding base.yaml and environment overlays",
				EnvVars: []string{"JEWEL_CONFIG_DIR"},
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment overlay to apply (e.g. prod)",
				EnvVars: []string{"JEWEL_ENV"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "catalog",
				Usage: "Manage catalog products",
				Subcommands: []*cli.Command{
					{
						Name:  "seed",
						Usage: "Upsert products from a JSON array file",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "Path to products JSON"},
						},
						Action: seedCatalogCommand,
					},
				},
			},
			{
				Name:  "users",
				Usage: "Manage user accounts",
				Subcommands: []*cli.Command{
					{
						Name:  "create-admin",
						Usage: "Create or promote an admin account",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Required: true},
							&cli.StringFlag{Name: "name", Required: true},
							&cli.StringFlag{Name: "email", Required: true},
							&cli.StringFlag{Name: "phone"},
						},
						Action: createAdminCommand,
					},
				},
			},
			{
				Name:  "token",
				Usage: "Issue bearer tokens",
				Subcommands: []*cli.Command{
					{
						Name:  "mint",
						Usage: "Sign a token for a user id",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "user", Required: true, Usage: "User id"},
							&cli.StringFlag{Name: "role", Usage: "Role claim, e.g. admin"},
							&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime (default from config)"},
						},
						Action: mintTokenCommand,
					},
				},
			},
			{
				Name:  "orders",
				Usage: "Operate on orders",
				Subcommands: []*cli.Command{
					{
						Name:  "set-status",
						Usage: "Move an order to a new status",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Required: true, Usage: "Order id"},
							&cli.StringFlag{Name: "status", Required: true, Usage: "pending|confirmed|shipped|delivered|cancelled"},
						},
						Action: setStatusCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config-dir"), c.String("env"))
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// withMongo connects, runs fn and disconnects.
func withMongo(c *cli.Context, fn func(ctx context.Context, cfg config.Config, db *mongo.Database, log *logger.Logger) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.App.LogMode, cfg.App.LogLevel, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := c.Context
	db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()

	return fn(ctx, cfg, db, log)
}
