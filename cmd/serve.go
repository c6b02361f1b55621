package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"llm-gateway/internal/config"
	"llm-gateway/internal/engine"
	"llm-gateway/internal/logging"
	"llm-gateway/internal/models"
	"llm-gateway/internal/observability"
	providerfactory "llm-gateway/internal/provider/factory"
	"llm-gateway/internal/router"
	"llm-gateway/internal/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML configuration file", Sources: cli.EnvVars("LLM_GATEWAY_CONFIG")},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded into the environment (missing file is ignored unless set explicitly)", Sources: cli.EnvVars("LLM_GATEWAY_ENV_FILE")},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "override server port", Sources: cli.EnvVars("LLM_GATEWAY_PORT")},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LLM_GATEWAY_LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Usage: "text or json", Sources: cli.EnvVars("LLM_GATEWAY_LOG_FORMAT")},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, os.LookupEnv)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	srv, err := buildServer(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// loadConfig layers defaults, the YAML file, the dotenv file, the process
// environment and finally explicit flags.
func loadConfig(cmd *cli.Command, lookup func(string) (string, bool)) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if err := config.LoadDotEnv(cmd.String("env-file"), cmd.IsSet("env-file")); err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return config.Config{}, err
	}

	if cmd.IsSet("port") {
		port := cmd.Int("port")
		if port <= 0 || port > 65535 {
			return config.Config{}, fmt.Errorf("port override %d must be a valid TCP port", port)
		}
		cfg.Server.Port = port
	}
	if cmd.IsSet("log-level") {
		cfg.Observability.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Observability.LogFormat = cmd.String("log-format")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildServer assembles registry, router, engine and HTTP server.
func buildServer(ctx context.Context, cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (*server.Server, error) {
	registry, err := providerfactory.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if registry.Len() == 0 {
		logger.Warn("no providers configured; every chat request will be rejected")
	}

	var metrics *observability.Metrics
	if cfg.Observability.Metrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.New(reg)
	}

	rules := make([]router.Rule, 0, len(cfg.Routing))
	for _, rule := range cfg.Routing {
		rules = append(rules, router.Rule{Provider: rule.Provider, Prefixes: rule.Prefixes})
	}
	rt := router.New(registry, rules, router.WithLogger(logger), router.WithMetrics(metrics))

	eng := engine.New(rt,
		engine.WithLogger(logger),
		engine.WithTimeout(cfg.Limits.RequestTimeout),
		engine.WithLimits(models.Limits{
			MinTemperature: cfg.Limits.MinTemperature,
			MaxTemperature: cfg.Limits.MaxTemperature,
		}),
		engine.WithModels(registry),
	)

	return server.New(cfg, eng, server.WithLogger(logger), server.WithMetrics(metrics))
}
