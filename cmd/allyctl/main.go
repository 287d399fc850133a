// Command allyctl is the operator tool for the allyboard store: it edits
// mentions, previews templates, manages the queue and triggers due sends.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	c := newCLI()
	err := execute(ctx, c, newRootCmd(c))
	stop()
	if err != nil {
		os.Exit(1)
	}
}
