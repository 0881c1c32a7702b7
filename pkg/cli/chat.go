package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tanpawarit/movebot/agent/agents/orchestrator"
	statex "github.com/tanpawarit/movebot/agent/state"
	"github.com/tanpawarit/movebot/app"
	logx "github.com/tanpawarit/movebot/pkg/logger"
)

func chatCommand() *cli.Command {
	var (
		g      globals
		memory bool
		voice  bool
		debug  bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "memory",
			Aliases:     []string{"m"},
			Usage:       "Keep the session in memory instead of the configured store",
			Destination: &memory,
		},
		&cli.BoolFlag{
			Name:        "voice",
			Usage:       "Validate utterances as if they came from a phone call",
			Destination: &voice,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "Print debug logs to stderr",
			Destination: &debug,
		},
	}
	flags = append(flags, globalFlags(&g)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the assistant from the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			g.apply()
			logx.InitWriter(os.Stderr, logx.Config{Debug: debug})

			cfgs, err := app.LoadConfigs()
			if err != nil {
				return err
			}
			if memory {
				cfgs.App.StoreDriver = app.StoreMemory
			}

			ctx = log.Logger.WithContext(ctx)
			a, err := app.Build(ctx, cfgs)
			if err != nil {
				return err
			}
			defer a.Close()

			return chatLoop(ctx, c.Root().Writer, a.Orchestrator, voice)
		},
	}
}

func chatLoop(ctx context.Context, w io.Writer, o *orchestrator.Orchestrator, voice bool) error {
	start, err := o.StartSession(ctx)
	if err != nil {
		return err
	}
	channel := statex.ChannelText
	if voice {
		channel = statex.ChannelVoice
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          w,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(w, "session %s. Type /end to finish, exit to quit.\n", start.SessionID)
	fmt.Fprintf(w, "bot> %s\n", start.Text)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit":
			return nil
		case "/end":
			reply, err := o.EndSession(ctx, start.SessionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "bot> %s\n", reply.Text)
			return nil
		}

		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		sp.Suffix = " thinking"
		sp.Start()
		reply, err := o.HandleMessage(ctx, orchestrator.Request{
			SessionID: start.SessionID,
			Text:      line,
			Channel:   channel,
		})
		sp.Stop()

		switch {
		case errors.Is(err, orchestrator.ErrSessionEnded):
			fmt.Fprintf(w, "bot> %s\n", orchestrator.EndedReply)
			return nil
		case err != nil:
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}

		fmt.Fprintf(w, "bot> %s\n", reply.Text)
		if reply.State == statex.StateConfirmed {
			fmt.Fprintln(w, "(booking confirmed)")
		}
	}
}
