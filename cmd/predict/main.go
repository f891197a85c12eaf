// cmd/predict/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/SyedDaiam9101/image-predict/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	app := &cli.App{Stdout: os.Stdout, Stderr: os.Stderr}
	code := app.Run(ctx, os.Args[1:])

	stop()
	os.Exit(code)
}
