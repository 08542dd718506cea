package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/veslund/canon/internal"
	"github.com/veslund/canon/internal/diag"
	"github.com/veslund/canon/internal/mcpserver"
	"github.com/veslund/canon/internal/storage"
	"github.com/veslund/canon/internal/store"
	canonsync "github.com/veslund/canon/internal/sync"
	pkgconfig "github.com/veslund/canon/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) && !cmd.IsSet("config") {
			// No config file; run on defaults.
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openEngine builds a sync engine for one-shot commands. The logger goes to
// stderr so stdout carries only the batch JSON.
func openEngine(cfg *internal.Config) (*canonsync.Engine, *store.Store, storage.Provider, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	files, err := storage.NewFS(cfg.Canon.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init storage: %w", err)
	}
	st, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init store: %w", err)
	}

	engine := canonsync.New(st, files, logger, canonsync.Options{
		Workers: cfg.Sync.Workers,
		Actor:   cfg.Sync.Actor,
	})
	return engine, st, files, nil
}

// printBatch writes the batch as indented JSON and turns rejected pages into
// a non-zero exit code.
func printBatch(batch *canonsync.BatchResult) error {
	out, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if batch.Rejected() {
		return cli.Exit("", 1)
	}
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runIngest(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, st, _, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	batch, err := engine.Ingest(ctx, cmd.Args().Slice())
	if err != nil {
		return err
	}
	return printBatch(batch)
}

func runGenerate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, st, _, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	batch, err := engine.Generate(ctx, nil)
	if err != nil {
		return err
	}
	return printBatch(batch)
}

func runFull(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, st, _, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	batch, err := engine.Full(ctx, cmd.Args().Slice())
	if err != nil {
		return err
	}
	return printBatch(batch)
}

func runCheck(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, st, _, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if cmd.Args().Len() == 0 {
		return fmt.Errorf("check: at least one page path is required")
	}

	errored := false
	for _, p := range cmd.Args().Slice() {
		fd, err := engine.CheckPage(p)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(fd, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		if diag.HasErrors(fd.Diagnostics) {
			errored = true
		}
	}
	if errored {
		return cli.Exit("", 1)
	}
	return nil
}

func runMCP(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, st, files, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := mcpserver.New(files, st, engine)
	return srv.ServeStdio()
}

func main() {
	cmd := &cli.Command{
		Name:   "canon",
		Usage:  "Story-bible sync engine: a relational datastore and a tree of Markdown pages kept in agreement",
		Action: runServe,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server with the page watcher",
				Action: runServe,
			},
			{
				Name:      "ingest",
				Usage:     "Ingest edited pages into the datastore (all pages when no paths given)",
				ArgsUsage: "[paths...]",
				Action:    runIngest,
			},
			{
				Name:   "generate",
				Usage:  "Regenerate every page from datastore state",
				Action: runGenerate,
			},
			{
				Name:      "full",
				Usage:     "Ingest then regenerate all affected pages",
				ArgsUsage: "[paths...]",
				Action:    runFull,
			},
			{
				Name:      "check",
				Usage:     "Validate pages without writing anything",
				ArgsUsage: "<paths...>",
				Action:    runCheck,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tool interface on stdin/stdout",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
