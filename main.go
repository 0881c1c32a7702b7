package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tanpawarit/movebot/pkg/cli"
	_ "github.com/tanpawarit/movebot/pkg/logger/autoload"
)

func main() {
	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Message)
		os.Exit(err.Code)
	}
}
