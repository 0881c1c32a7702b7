package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	configx "github.com/tanpawarit/movebot/pkg/config"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "movebot",
		Usage: "Move booking assistant",
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			faqCommand(),
			sweepCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

type globals struct {
	envFile string
}

// globalFlags returns flags shared by every command.
func globalFlags(g *globals) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "env",
			Aliases:     []string{"e"},
			Usage:       "Path to a .env file",
			Sources:     cli.EnvVars("MOVEBOT_ENV_FILE"),
			Destination: &g.envFile,
		},
	}
}

func (g *globals) apply() {
	if g.envFile != "" {
		configx.SetEnvFile(g.envFile)
	}
}
