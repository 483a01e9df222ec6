package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
	"github.com/m-mizutani/taskory/capability"
	"github.com/m-mizutani/taskory/llm/claude"
	"github.com/m-mizutani/taskory/llm/gemini"
	"github.com/m-mizutani/taskory/llm/openai"
	"github.com/spf13/viper"
)

func buildEngine(ctx context.Context) (*taskory.Engine, error) {
	llm, err := buildLLM(ctx)
	if err != nil {
		return nil, err
	}

	workdir := viper.GetString("workdir")
	options := []taskory.Option{
		taskory.WithCapabilitySets(
			capability.NewConversation(llm),
			capability.NewFile(workdir),
			capability.NewShell(),
			capability.NewWeb(),
		),
		taskory.WithExecutionMode(taskory.ExecutionMode(viper.GetString("mode"))),
		taskory.WithLogger(buildLogger()),
	}

	if dir := viper.GetString("snapshot-dir"); dir != "" {
		repo, err := taskory.NewFileSnapshotRepository(dir)
		if err != nil {
			return nil, err
		}
		options = append(options, taskory.WithSnapshotRepository(repo))
	}

	return taskory.New(ctx, llm, options...)
}

func buildLLM(ctx context.Context) (taskory.LLMClient, error) {
	model := viper.GetString("model")

	switch provider := viper.GetString("provider"); provider {
	case "claude":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, goerr.New("ANTHROPIC_API_KEY is not set")
		}
		var opts []claude.Option
		if model != "" {
			opts = append(opts, claude.WithModel(model))
		}
		return claude.New(ctx, apiKey, opts...)

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, goerr.New("OPENAI_API_KEY is not set")
		}
		var opts []openai.Option
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		return openai.New(ctx, apiKey, opts...)

	case "gemini":
		project := viper.GetString("gcp-project")
		if project == "" {
			return nil, goerr.New("gcp-project is not set")
		}
		var opts []gemini.Option
		if model != "" {
			opts = append(opts, gemini.WithModel(model))
		}
		return gemini.New(ctx, project, viper.GetString("gcp-location"), opts...)

	default:
		return nil, goerr.New("unknown provider", goerr.V("provider", provider))
	}
}

func buildLogger() *slog.Logger {
	var level slog.Level
	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
