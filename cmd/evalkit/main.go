// Command evalkit runs registered evaluation tasks against a configured model.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/datar-psa/evalkit/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
