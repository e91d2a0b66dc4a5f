package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/ssechat/internal/server"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

type flags struct {
	ConfigPath string
	EnvFile    string
	Port       string
	LogLevel   string
	LogFormat  string
}

func main() {
	if err := setupLogger("info", "console"); err != nil {
		panic(err)
	}

	f := &flags{}

	app := &cli.Command{
		Name:      "ssechat",
		Usage:     "Broadcast chat messages to Server-Sent-Events listeners",
		UsageText: "ssechat [options]",
		Version:   build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to YAML config file",
				Sources:     cli.EnvVars("SSECHAT_CONFIG"),
				Destination: &f.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "path to .env file (defaults to ./.env when present)",
				Destination: &f.EnvFile,
			},
			&cli.StringFlag{
				Name:        "port",
				Aliases:     []string{"p"},
				Usage:       "listen port or address, overrides PORT",
				Destination: &f.Port,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (trace, debug, info, warn, error), overrides LOG_LEVEL",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (console, json), overrides LOG_FORMAT",
				Destination: &f.LogFormat,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c, f)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("ssechat exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command, f *flags) error {
	overrides := map[string]any{}
	if c.IsSet("port") {
		overrides["port"] = f.Port
	}
	if c.IsSet("log-level") {
		overrides["log.level"] = f.LogLevel
	}
	if c.IsSet("log-format") {
		overrides["log.format"] = f.LogFormat
	}

	cfg, err := server.LoadConfig(server.LoadOptions{
		ConfigFile: f.ConfigPath,
		EnvFile:    f.EnvFile,
		Overrides:  overrides,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := setupLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, log.With().Str("component", "server").Logger())
	return srv.Run(ctx)
}

func setupLogger(level, format string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer
	switch format {
	case "json":
		output = os.Stderr
	case "console", "":
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger().Level(parsedLevel)
	return nil
}
