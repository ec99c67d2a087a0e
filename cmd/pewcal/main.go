package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/urfave/cli/v3"

	"github.com/pewcal/pewcal/internal/api"
	"github.com/pewcal/pewcal/internal/assistant"
	"github.com/pewcal/pewcal/internal/auth"
	"github.com/pewcal/pewcal/internal/command"
	"github.com/pewcal/pewcal/internal/config"
	"github.com/pewcal/pewcal/internal/gcal"
	httpserver "github.com/pewcal/pewcal/internal/http"
	httperrors "github.com/pewcal/pewcal/internal/http/errors"
	"github.com/pewcal/pewcal/internal/logger"
	"github.com/pewcal/pewcal/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "pewcal",
		Usage: "chat-driven Google Calendar companion",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations and exit",
				Action: migrate,
			},
			{
				Name:      "parse",
				Usage:     "print the command a chat message parses to",
				ArgsUsage: "<message>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tz", Value: "America/Chicago", Usage: "timezone used to resolve dates"},
					&cli.BoolFlag{Name: "llm", Usage: "ask the language model before the rules"},
					&cli.StringFlag{Name: "openai-key", Sources: cli.EnvVars("APP_OPENAI_API_KEY"), Usage: "OpenAI API key for --llm"},
					&cli.StringFlag{Name: "model", Value: "gpt-3.5-turbo", Sources: cli.EnvVars("APP_OPENAI_MODEL")},
				},
				Action: parse,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, _ *cli.Command) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	httperrors.SetLogger(log)
	log.Info("starting pewcal", "env", cfg.Env, "addr", cfg.ListenAddr)
	if len(cfg.TrustedProxies) == 0 {
		log.Warn("APP_TRUSTED_PROXIES not set; rate limiting trusts X-Forwarded-For from any peer")
	}

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("create db pool: %w", err)
	}
	defer pool.Close()

	stor := store.New(pool)
	if cfg.AutoMigrate {
		applied, err := stor.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("applied migrations", "names", applied)
		}
	}

	sessions, err := auth.NewSessionManager(cfg)
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}
	authService, err := auth.NewService(cfg, stor, sessions, log.With("component", "auth"))
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	deps := api.Deps{
		Store:     stor,
		Sessions:  sessions,
		Calendars: gcal.GoogleConnector(),
		Location:  cfg.Location(),
		Logger:    log.With("component", "api"),
	}
	if cfg.AssistantEnabled() {
		model, err := newModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		if err != nil {
			return err
		}
		def, err := assistant.LoadDefinition()
		if err != nil {
			return fmt.Errorf("load assistant definition: %w", err)
		}
		if cfg.OpenAI.Model != "" {
			def.Model = cfg.OpenAI.Model
		}
		deps.Model = model
		deps.Assistant = assistant.NewService(openai.NewClient(cfg.OpenAI.APIKey), def, cfg.OpenAI.AssistantID, log.With("component", "assistant"))
	} else {
		log.Warn("APP_OPENAI_API_KEY not set; assistant disabled and chat uses the rule parser")
	}

	router := httpserver.NewRouter(ctx, cfg, stor, authService, api.NewHandler(deps), log.With("component", "http"))

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, _ *cli.Command) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("create db pool: %w", err)
	}
	defer pool.Close()

	applied, err := store.New(pool).Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("database is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Println("applied", name)
	}
	return nil
}

func parse(ctx context.Context, c *cli.Command) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return errors.New("usage: pewcal parse [--tz zone] [--llm] <message>")
	}
	loc, err := time.LoadLocation(c.String("tz"))
	if err != nil {
		return fmt.Errorf("timezone %q: %w", c.String("tz"), err)
	}

	parser := command.FallbackParser{Secondary: command.RuleParser{}}
	if c.Bool("llm") {
		if c.String("openai-key") == "" {
			return errors.New("--llm needs APP_OPENAI_API_KEY or --openai-key")
		}
		model, err := newModel(c.String("openai-key"), c.String("model"))
		if err != nil {
			return err
		}
		parser.Primary = command.LLMParser{Model: model}
	}

	cmd, err := parser.Parse(ctx, text, time.Now().In(loc))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cmd)
}

func newModel(key, model string) (llms.Model, error) {
	llm, err := lcopenai.New(lcopenai.WithToken(key), lcopenai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("init language model: %w", err)
	}
	return llm, nil
}
