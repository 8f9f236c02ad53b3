package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aussiebroadwan/encore/internal/encore/app"
	"github.com/aussiebroadwan/encore/pkg/cryptox"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a TOML configuration file (overrides $" + app.ConfigFileEnv + ")",
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "encore",
		Usage:   "Listening statistics backed by the Spotify Web API",
		Version: app.BuildVersion,
		Writer:  out,
		Flags:   []cli.Flag{configFlag()},
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Flags:  []cli.Flag{configFlag()},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and seal plaintext refresh tokens",
				Flags:  []cli.Flag{configFlag()},
				Action: migrate,
			},
			{
				Name:  "gen-secret",
				Usage: "Print a random 256-bit secret for JWT_SECRET or ENCRYPTION_KEY",
				Action: func(_ context.Context, cmd *cli.Command) error {
					secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.Root().Writer, secret)
					return err
				},
			},
		},
	}
}

func serve(_ context.Context, cmd *cli.Command) error {
	cfg, err := app.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run()
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := app.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	res, err := app.Migrate(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.Root().Writer, "schema version %d (dirty=%t), %d refresh tokens sealed\n",
		res.SchemaVersion, res.Dirty, res.Reencrypted)
	return err
}
