package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tanpawarit/movebot/app"
)

func faqCommand() *cli.Command {
	return &cli.Command{
		Name:  "faq",
		Usage: "Manage the FAQ index",
		Commands: []*cli.Command{
			faqIndexCommand(),
		},
	}
}

func faqIndexCommand() *cli.Command {
	var (
		g    globals
		path string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "FAQ dataset (JSONL), overrides APP_FAQ_PATH",
			Destination: &path,
		},
	}
	flags = append(flags, globalFlags(&g)...)

	return &cli.Command{
		Name:  "index",
		Usage: "Embed the FAQ dataset and write the embedding cache",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			g.apply()
			cfgs, err := app.LoadConfigs()
			if err != nil {
				return err
			}
			if path != "" {
				cfgs.App.FAQPath = path
				cfgs.App.FAQCachePath = ""
			}

			m, err := app.BuildFAQIndex(log.Logger.WithContext(ctx), cfgs)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "indexed %d FAQ entries from %s\n", m.Len(), cfgs.App.FAQPath)
			return nil
		},
	}
}
