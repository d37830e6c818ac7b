package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/maxgio92/pcregion/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pcregion: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
