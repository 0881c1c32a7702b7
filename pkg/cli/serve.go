package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tanpawarit/movebot/app"
)

func serveCommand() *cli.Command {
	var (
		g    globals
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address, overrides APP_BIND_ADDR",
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&g)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP, websocket and voice endpoints",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			g.apply()
			cfgs, err := app.LoadConfigs()
			if err != nil {
				return err
			}
			if addr != "" {
				cfgs.App.BindAddr = addr
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = log.Logger.WithContext(ctx)

			a, err := app.Build(ctx, cfgs)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error().Err(err).Msg("close app")
				}
			}()

			return a.Serve(ctx)
		},
	}
}
