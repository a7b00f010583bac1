package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/helia-labs/helia-server/internal/ai"
	"github.com/helia-labs/helia-server/internal/chat"
	"github.com/helia-labs/helia-server/internal/config"
	"github.com/helia-labs/helia-server/internal/db"
	"github.com/helia-labs/helia-server/internal/logging"
	"github.com/helia-labs/helia-server/internal/persona"
)

type turnJobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	log := logging.New("helia-worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}

	personas := persona.NewRegistry(persona.Seed())

	providers := ai.NewRegistry()
	providers.Register("openai", func(ctx context.Context) (ai.Provider, error) {
		if cfg.AzureEndpoint != "" {
			return ai.NewAzureOpenAIProvider(cfg.OpenAIAPIKey, cfg.AzureEndpoint, cfg.OpenAIModel), nil
		}
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	})
	providers.Register("ollama", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	})

	repo := chat.NewRepo(gdb)
	builder := chat.NewContextBuilder(repo, personas, cfg.ChatContextWindowSize)
	svc := chat.NewService(repo, personas, providers, strings.ToLower(cfg.AIProvider), builder)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial failed")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel failed")
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	}); err != nil {
		log.Fatal().Err(err).Msg("queue declare failed")
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos failed")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With().Int("worker", workerID).Logger()
			for d := range jobs {
				var m turnJobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					wlog.Error().Err(err).Msg("bad message")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleTurnJob(ctx, svc, repo, m.JobID, wlog); err != nil {
					wlog.Error().Err(err).Str("job_id", m.JobID).Dur("cost", time.Since(start)).Msg("job failed")
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					wlog.Error().Err(err).Str("job_id", m.JobID).Msg("ack failed")
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleTurnJob(ctx context.Context, svc *chat.Service, repo *chat.Repo, jobID string, log zerolog.Logger) error {
	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	_, assistantMsgID, err := svc.CompleteTurn(ctx, j.UserID, j.SessionID)
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	if err := repo.MarkJobSucceeded(ctx, jobID, assistantMsgID); err != nil {
		return err
	}

	log.Debug().Str("job_id", jobID).Uint64("message_id", assistantMsgID).Msg("job done")
	return nil
}
