package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-match-service/internal/ai"
	"quiz-match-service/internal/app"
	"quiz-match-service/internal/config"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
	pgloader "quiz-match-service/internal/infra/postgres"
	infraredis "quiz-match-service/internal/infra/redis"
	transport "quiz-match-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the match orchestration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	// background loops (workers, pool reaper, pub/sub) stop on shutdown
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	hub := transport.NewHub()

	var directory app.Directory
	var broadcaster app.Broadcaster
	if redisClient != nil {
		directory = infraredis.NewDirectory(redisClient, config.TTLDuration(cfg.Redis.Timeout, infraredis.DefaultTimeout))
		rb := infraredis.NewBroadcaster(redisClient, infraredis.DefaultChannel)
		broadcaster = rb
		go func() {
			if err := rb.Run(runCtx, hub); err != nil && runCtx.Err() == nil {
				log.Printf("broadcast subscriber stopped: %v", err)
			}
		}()
	} else {
		directory = memory.NewDirectory()
		broadcaster = memory.NewBroadcaster(hub)
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	matchTTL := config.TTLDuration(cfg.Match.TTL, time.Hour)
	workerPool := app.NewPool(directory, app.PoolConfig{
		LivenessWindow: config.TTLDuration(cfg.Workers.LivenessWindow, 15*time.Second),
		MatchTTL:       matchTTL,
	})
	go workerPool.Run(runCtx)

	opponent := ai.NewOpponent(time.Now().UnixNano())
	workerCount := cfg.Workers.Count
	if workerCount <= 0 {
		workerCount = 4
	}
	workerCfg := app.WorkerConfig{
		BonusRate: cfg.Match.BonusRate,
		MatchTTL:  matchTTL,
		Grace:     config.TTLDuration(cfg.Match.Grace, time.Minute),
		Heartbeat: config.TTLDuration(cfg.Workers.Heartbeat, 5*time.Second),
	}
	// Worker ids carry a per-process suffix: a match record assigned by
	// another master must never resolve to one of this process's workers.
	instance := uuid.NewString()[:8]
	for i := 0; i < workerCount; i++ {
		w := app.NewWorker(fmt.Sprintf("worker-%02d-%s", i+1, instance), directory, broadcaster, opponent, workerCfg)
		workerPool.Register(w)
		go w.Run(runCtx)
	}

	service := app.NewMatchService(directory, workerPool, quizRepo, broadcaster, app.ServiceConfig{
		MatchTTL:       matchTTL,
		MultiplayerCap: cfg.Match.MaxMultiplayer,
	})

	wsHandler := transport.NewWSHandler(service, hub)
	api := transport.NewAPI(service, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	api.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting match service on :%s with %d workers", finalPort, workerCount)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides a minimal set of quiz data; a Postgres-backed loader
// replaces this in production.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:        "quiz-1",
			Title:     "Quick Arithmetic",
			TimeLimit: 30,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
					Points: 10,
				},
				{
					ID:     "q2",
					Prompt: "Which of these are prime?",
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "7", Correct: true},
						{ID: "o4", Text: "9"},
					},
					Points: 10,
				},
				{
					ID:     "q3",
					Prompt: "What is 12 × 12?",
					Options: []domain.Option{
						{ID: "o1", Text: "124"},
						{ID: "o2", Text: "144", Correct: true},
						{ID: "o3", Text: "154"},
					},
					Points: 10,
				},
			},
		},
	}
}
