package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vshumov/minibank/internal/testutil"
)

func Test_run(t *testing.T) {
	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	storeFile := filepath.Join(t.TempDir(), "bank.json")

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err = run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--storage", "file",
			"--store-file", storeFile,
			"--secret-key", "secret",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with srv error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--storage", "file",
			"--store-file", storeFile,
		})

		require.Error(t, err, "on incorrect stop should return error")
	})
}
