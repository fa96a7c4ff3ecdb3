package main

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courseauth/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--environment", "dev",
			"--database", pg.DSN,
			"--secret-key", "secret",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with signal and redis", func(t *testing.T) {
		mr, _ := testutil.StartRedis(t)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
			"--secret-key", "secret",
			"--redis", "redis://" + mr.Addr(),
		})

		require.NoError(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
		})

		require.Error(t, err, "on incorrect config should return error")
	})

	t.Run("unreachable redis", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
			"--secret-key", "secret",
			"--redis", "redis://localhost:1/0",
		})

		require.Error(t, err)
	})
}
