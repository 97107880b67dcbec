package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docvec/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// run executes the app against an in-memory store and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvRedisURL, "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := fmt.Sprintf("store:\n  in_memory: true\nblob:\n  root: %s\n", filepath.Join(dir, "files"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(data), 0o644))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	argv := append([]string{"docvec", "--config", cfgPath, "--env-file", ""}, args...)
	err := app.Run(argv)
	return out.String(), err
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docvec", "config.yaml")
	initApp := func(args ...string) (string, error) {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		app.ErrWriter = &bytes.Buffer{}
		err := app.Run(append([]string{"docvec", "--config", path, "--env-file", "", "init"}, args...))
		return out.String(), err
	}

	out, err := initApp()
	require.NoError(t, err)
	assert.Contains(t, out, path)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendBadger, cfg.Store.Backend)

	_, err = initApp()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = initApp("--force")
	require.NoError(t, err)
}

func TestListEmpty(t *testing.T) {
	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents")
}

func TestStatusUnknownDocument(t *testing.T) {
	_, err := run(t, "status", "missing-doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDeleteUnknownDocument(t *testing.T) {
	out, err := run(t, "delete", "missing-doc")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to delete")
}

func TestProcessCommandValidation(t *testing.T) {
	t.Run("user is required", func(t *testing.T) {
		_, err := run(t, "process", "notes.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "user")
	})

	t.Run("source is required", func(t *testing.T) {
		_, err := run(t, "process", "--user", "user-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path or url is required")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := run(t, "process", "--user", "user-1", filepath.Join(t.TempDir(), "nope.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := run(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestLoadEnv(t *testing.T) {
	const key = "DOCVEC_TEST_ENV_FILE_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(key+"=from-file\n"), 0o644))

	app := &cli.App{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file"},
		},
		Before: loadEnv,
		Action: func(c *cli.Context) error { return nil },
	}
	require.NoError(t, app.Run([]string{"test", "--env-file", envFile}))
	assert.Equal(t, "from-file", os.Getenv(key))

	// A missing file is not an error.
	require.NoError(t, app.Run([]string{"test", "--env-file", filepath.Join(t.TempDir(), "absent")}))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t c", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: tc.input,
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
				assert.True(t, slog.Default().Enabled(context.Background(), tc.expected))
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		for _, tc := range []string{"DEBUG", "Info", "WaRn", "ERROR"} {
			t.Run(tc, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: "info",
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := newApp()
		err := app.Run([]string{"docvec", "--log-level", "invalid", "list"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log-level",
					Aliases: []string{"l"},
					Value:   "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				assert.Equal(t, "debug", c.String("log-level"))
				return nil
			},
		}

		err := app.Run([]string{"test", "-l", "debug"})
		require.NoError(t, err)
	})
}
