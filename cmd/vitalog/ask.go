package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/m-mizutani/vitalog"
	"github.com/m-mizutani/vitalog/artifact"
	"github.com/m-mizutani/vitalog/llm"
	"github.com/m-mizutani/vitalog/llm/claude"
	"github.com/m-mizutani/vitalog/llm/gemini"
	"github.com/m-mizutani/vitalog/llm/openai"
	"github.com/m-mizutani/vitalog/memory"
	"github.com/m-mizutani/vitalog/search"
	"github.com/m-mizutani/vitalog/wearable"
)

type askConfig struct {
	profileID     string
	models        string
	logLevel      string
	dbPath        string
	artifactDir   string
	openaiAPIKey  string
	claudeAPIKey  string
	geminiProject string
	geminiRegion  string
	braveAPIKey   string
	fitbitID      string
	fitbitSecret  string
	fitbitToken   string
}

func askCommand() *cli.Command {
	var cfg askConfig

	return &cli.Command{
		Name:      "ask",
		Usage:     "run one journaling job for a query",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "profile",
				Usage:       "profile ID owning the journal",
				Value:       "default",
				Sources:     cli.EnvVars("VITALOG_PROFILE"),
				Destination: &cfg.profileID,
			},
			&cli.StringFlag{
				Name:        "models",
				Usage:       "comma-separated model order (openai, claude, gemini)",
				Value:       "openai,claude,gemini",
				Sources:     cli.EnvVars("VITALOG_MODELS"),
				Destination: &cfg.models,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("VITALOG_LOG_LEVEL"),
				Destination: &cfg.logLevel,
			},
			&cli.StringFlag{
				Name:        "db",
				Usage:       "path to the memory database",
				Value:       "vitalog.db",
				Sources:     cli.EnvVars("VITALOG_DB"),
				Destination: &cfg.dbPath,
			},
			&cli.StringFlag{
				Name:        "artifacts",
				Usage:       "directory receiving per-job artifacts",
				Value:       "artifacts",
				Sources:     cli.EnvVars("VITALOG_ARTIFACT_DIR"),
				Destination: &cfg.artifactDir,
			},
			&cli.StringFlag{
				Name:        "openai-api-key",
				Sources:     cli.EnvVars("OPENAI_API_KEY"),
				Destination: &cfg.openaiAPIKey,
			},
			&cli.StringFlag{
				Name:        "anthropic-api-key",
				Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
				Destination: &cfg.claudeAPIKey,
			},
			&cli.StringFlag{
				Name:        "gcp-project",
				Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
				Destination: &cfg.geminiProject,
			},
			&cli.StringFlag{
				Name:        "gcp-location",
				Value:       "us-central1",
				Sources:     cli.EnvVars("GOOGLE_CLOUD_LOCATION"),
				Destination: &cfg.geminiRegion,
			},
			&cli.StringFlag{
				Name:        "brave-api-key",
				Sources:     cli.EnvVars("BRAVE_API_KEY"),
				Destination: &cfg.braveAPIKey,
			},
			&cli.StringFlag{
				Name:        "fitbit-client-id",
				Sources:     cli.EnvVars("FITBIT_CLIENT_ID"),
				Destination: &cfg.fitbitID,
			},
			&cli.StringFlag{
				Name:        "fitbit-client-secret",
				Sources:     cli.EnvVars("FITBIT_CLIENT_SECRET"),
				Destination: &cfg.fitbitSecret,
			},
			&cli.StringFlag{
				Name:        "fitbit-credential-file",
				Value:       "fitbit_token.json",
				Sources:     cli.EnvVars("FITBIT_CREDENTIAL_FILE"),
				Destination: &cfg.fitbitToken,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query argument is required")
			}
			return runAsk(ctx, &cfg, query)
		},
	}
}

func runAsk(ctx context.Context, cfg *askConfig, query string) error {
	logger := newLogger(cfg.logLevel)

	router, embedder, err := buildRouter(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := memory.New(ctx, cfg.dbPath, embedder)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.braveAPIKey == "" {
		return goerr.New("brave-api-key is required")
	}
	searcher := search.New(cfg.braveAPIKey)

	device := wearable.New(&oauth2.Config{
		ClientID:     cfg.fitbitID,
		ClientSecret: cfg.fitbitSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://www.fitbit.com/oauth2/authorize",
			TokenURL: "https://api.fitbit.com/oauth2/token",
		},
	}, wearable.NewFileCredentialStore(cfg.fitbitToken))

	journal, err := vitalog.New(router, searcher, device, store,
		vitalog.WithLogger(logger),
		vitalog.WithArtifacts(artifact.New(cfg.artifactDir)),
	)
	if err != nil {
		return err
	}

	result, err := journal.Run(ctx, cfg.profileID, query)
	if err != nil {
		return err
	}

	logger.Info("job done",
		"job_id", result.JobID,
		"completed", result.Summary.ActionsCompleted,
		"dropped", result.Summary.ActionsDropped,
		"replans", result.Summary.Replans)

	if result.Response == "" {
		fmt.Println("(no final response was generated)")
		return nil
	}
	fmt.Println(result.Response)
	return nil
}

// buildRouter constructs the model fallback chain in the configured order,
// skipping providers without credentials. The OpenAI client doubles as the
// embedder for the memory store and is required.
func buildRouter(ctx context.Context, cfg *askConfig) (*llm.Router, memory.Embedder, error) {
	if cfg.openaiAPIKey == "" {
		return nil, nil, goerr.New("openai-api-key is required (memory embeddings)")
	}

	openaiClient, err := openai.New(ctx, cfg.openaiAPIKey)
	if err != nil {
		return nil, nil, err
	}

	var models []llm.Model
	for _, name := range strings.Split(cfg.models, ",") {
		switch strings.TrimSpace(name) {
		case "openai":
			models = append(models, llm.Model{Name: "openai", Client: openaiClient})
		case "claude":
			if cfg.claudeAPIKey == "" {
				continue
			}
			client, err := claude.New(ctx, cfg.claudeAPIKey)
			if err != nil {
				return nil, nil, err
			}
			models = append(models, llm.Model{Name: "claude", Client: client})
		case "gemini":
			if cfg.geminiProject == "" {
				continue
			}
			client, err := gemini.New(ctx, cfg.geminiProject, cfg.geminiRegion)
			if err != nil {
				return nil, nil, err
			}
			models = append(models, llm.Model{Name: "gemini", Client: client})
		case "":
		default:
			return nil, nil, goerr.New("unknown model name", goerr.V("name", name))
		}
	}

	router, err := llm.NewRouter(models...)
	if err != nil {
		return nil, nil, err
	}
	return router, openaiClient, nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
