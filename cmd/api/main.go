package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/helia-labs/helia-server/internal/ai"
	"github.com/helia-labs/helia-server/internal/chat"
	"github.com/helia-labs/helia-server/internal/config"
	"github.com/helia-labs/helia-server/internal/db"
	"github.com/helia-labs/helia-server/internal/httpapi"
	"github.com/helia-labs/helia-server/internal/logging"
	"github.com/helia-labs/helia-server/internal/persona"
	"github.com/helia-labs/helia-server/internal/store/rabbitmq"
	"github.com/helia-labs/helia-server/internal/store/redisstore"
)

func buildProviderRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context) (ai.Provider, error) {
		if cfg.AzureEndpoint != "" {
			return ai.NewAzureOpenAIProvider(cfg.OpenAIAPIKey, cfg.AzureEndpoint, cfg.OpenAIModel), nil
		}
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	})
	reg.Register("ollama", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	})
	return reg
}

func main() {
	log := logging.New("helia-api")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	personas := persona.NewRegistry(persona.Seed())
	providers := buildProviderRegistry(cfg)
	providerName := strings.ToLower(cfg.AIProvider)

	repo := chat.NewRepo(gdb)
	builder := chat.NewContextBuilder(repo, personas, cfg.ChatContextWindowSize)
	svc := chat.NewService(repo, personas, providers, providerName, builder)
	engine := chat.NewEngine(repo, personas, providers, providerName, builder, cfg.ChatTurnTimeout, log)

	var rabbit *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		rabbit, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			// Async chat is optional; the streaming path works without it.
			log.Warn().Err(err).Msg("rabbitmq unavailable, async chat disabled")
			rabbit = nil
		} else {
			defer rabbit.Close()
		}
	}

	router := httpapi.NewRouter(gdb, cfg, rds, personas, svc, engine, rabbit, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
