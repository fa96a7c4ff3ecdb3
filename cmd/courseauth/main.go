package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nkiryanov/courseauth/internal/logger"
)

func main() {
	// Initialize context that cancelled on SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "courseauth: %v\n", err)
		os.Exit(1)
	}
}

// Config layers: defaults, '.env', environment, flags
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while reading .env: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return fmt.Errorf("error while reading environment: %w", err)
	}
	if err := c.ParseFlags(args); err != nil {
		return fmt.Errorf("error while parsing flags: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config is not valid: %w", err)
	}

	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return fmt.Errorf("error while initializing logger: %w", err)
	}

	app, err := NewServerApp(ctx, c, l)
	if err != nil {
		return err
	}
	defer app.Close()

	err = app.Run(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
