// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	userFlag := &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Owning user id",
	}
	return &cli.App{
		Name:  "docvec",
		Usage: "Document ingestion and semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file (default ~/.config/docvec/config.yaml)",
				EnvVars: []string{"DOCVEC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Override the store path from the config",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadEnv(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write a config file with default values",
				Action: initCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
			},
			{
				Name:      "process",
				Usage:     "Ingest a local file or URL",
				ArgsUsage: "<path|url>",
				Action:    processCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Owning user id",
						Required: true,
					},
					&cli.StringFlag{Name: "id", Usage: "Document id (default: random UUID)"},
					&cli.StringFlag{Name: "name", Usage: "Display name (default: base name of the source)"},
					&cli.StringFlag{Name: "type", Usage: "MIME type of the source"},
				},
			},
			{
				Name:      "retry",
				Usage:     "Reprocess a failed document",
				ArgsUsage: "<document-id>",
				Action:    retryCommand,
			},
			{
				Name:      "reprocess",
				Usage:     "Rebuild the vectors of an indexed document",
				ArgsUsage: "<document-id>",
				Action:    reprocessCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a document, its vectors and its file",
				ArgsUsage: "<document-id>",
				Action:    deleteCommand,
			},
			{
				Name:      "status",
				Usage:     "Show a document",
				ArgsUsage: "<document-id>",
				Action:    statusCommand,
			},
			{
				Name:   "list",
				Usage:  "List documents",
				Action: listCommand,
				Flags:  []cli.Flag{userFlag},
			},
			{
				Name:      "search",
				Usage:     "Search indexed chunks",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					userFlag,
					&cli.StringFlag{Name: "doc", Usage: "Restrict to one document"},
					&cli.IntFlag{Name: "max-hits", Aliases: []string{"n"}, Usage: "Maximum number of hits", Value: 5},
					&cli.Float64Flag{Name: "min-score", Usage: "Drop hits less similar than this"},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Reprocess every indexed document, e.g. after changing the embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					userFlag,
					&cli.BoolFlag{Name: "include-failed", Usage: "Retry failed documents too"},
					&cli.IntFlag{Name: "report-interval", Usage: "Report progress every N documents", Value: 1},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadEnv reads the env file if present. Variables already set win.
func loadEnv(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	slog.Debug("loaded environment file", "path", path)
	return nil
}
