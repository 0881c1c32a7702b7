package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tanpawarit/movebot/agent/sweeper"
	statex "github.com/tanpawarit/movebot/agent/state"
	"github.com/tanpawarit/movebot/app"
	configx "github.com/tanpawarit/movebot/pkg/config"
)

func sweepCommand() *cli.Command {
	var (
		g      globals
		window time.Duration
	)

	flags := []cli.Flag{
		&cli.DurationFlag{
			Name:        "window",
			Usage:       "Idle window, overrides APP_SESSION_IDLE_WINDOW",
			Destination: &window,
		},
	}
	flags = append(flags, globalFlags(&g)...)

	return &cli.Command{
		Name:  "sweep",
		Usage: "Deactivate idle sessions once and exit",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			g.apply()
			cfg, err := configx.New[app.Config]("APP")
			if err != nil {
				return err
			}
			upstash, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
			if err != nil {
				return err
			}
			if window > 0 {
				cfg.SessionIdleWindow = window
			}

			ctx = log.Logger.WithContext(ctx)
			store, closeStore, err := app.OpenStore(ctx, *cfg, *upstash)
			if err != nil {
				return err
			}
			defer closeStore()

			sw, err := sweeper.New(store, cfg.SessionIdleWindow, cfg.SweepInterval, nil)
			if err != nil {
				return err
			}
			n, err := sw.SweepOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "deactivated %d idle session(s)\n", n)
			return nil
		},
	}
}
