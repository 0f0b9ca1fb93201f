package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cardforge/internal/http/handlers"
	httpapi "cardforge/internal/http/httpapi"
	"cardforge/internal/infra"
	"cardforge/internal/jobs"
	"cardforge/internal/providers/llm"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	store, err := jobs.NewStore(cfg.JobsDir, cfg.JobsKeepMax, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open jobs directory")
	}

	// One shared client keeps the generation timeout in one place.
	llmClient := &http.Client{Timeout: cfg.LLMTimeout}
	registry := llm.Registry{
		llm.ProviderOpenAI: llm.NewOpenAIGenerator(llm.OpenAIOptions{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			HTTPClient: llmClient,
			Logger:     &logger,
		}),
		llm.ProviderGrok: llm.NewGrokGenerator(llm.GrokOptions{
			APIKey:     cfg.XAIAPIKey,
			Model:      cfg.XAIModel,
			BaseURL:    cfg.XAIBaseURL,
			HTTPClient: llmClient,
			Logger:     &logger,
		}),
	}

	runner := jobs.NewRunner(store, registry, logger)
	app := handlers.NewApp(cfg, logger, store, runner)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
