package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap-incubator/tinydoc/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
