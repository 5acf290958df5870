package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mashiike/gdpull"
)

func main() {
	os.Exit(_main())
}

func _main() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var cli gdpull.CLI
	return cli.Run(ctx)
}
