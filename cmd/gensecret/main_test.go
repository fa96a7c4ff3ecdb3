package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	t.Run("default size", func(t *testing.T) {
		var out bytes.Buffer

		err := run(&out, nil)

		require.NoError(t, err)
		line := strings.TrimSpace(out.String())
		require.True(t, strings.HasPrefix(line, "SECRET_KEY="))
		require.Len(t, strings.TrimPrefix(line, "SECRET_KEY="), 64, "32 bytes hex encoded")
	})

	t.Run("custom size", func(t *testing.T) {
		var out bytes.Buffer

		err := run(&out, []string{"--bytes", "48"})

		require.NoError(t, err)
		require.Len(t, strings.TrimPrefix(strings.TrimSpace(out.String()), "SECRET_KEY="), 96)
	})

	t.Run("too short", func(t *testing.T) {
		var out bytes.Buffer

		err := run(&out, []string{"-b", "8"})

		require.Error(t, err)
		require.Empty(t, out.String())
	})

	t.Run("keys differ", func(t *testing.T) {
		a, err := generate(32)
		require.NoError(t, err)
		b, err := generate(32)
		require.NoError(t, err)

		require.NotEqual(t, a, b)
	})
}
