package cli

import (
	"context"
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

	"live-arena-service/internal/app"
	"live-arena-service/internal/config"
	"live-arena-service/internal/domain"
	"live-arena-service/internal/infra/link"
	"live-arena-service/internal/infra/memory"
	pgstore "live-arena-service/internal/infra/postgres"
	redisstore "live-arena-service/internal/infra/redis"
	transport "live-arena-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the arena server",
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
	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + finalPort
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// Document store preference: Postgres, then Redis, then memory.
	var store app.DocumentStore
	switch {
	case pool != nil:
		store = pgstore.NewDocumentStore(pool)
	case redisClient != nil:
		store = redisstore.NewDocumentStore(redisClient, cfg.Document.Key)
	default:
		store = memory.NewDocumentStore()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var bank app.QuizBank
	if redisClient != nil {
		bank = redisstore.NewQuizBank(redisClient, loader, quizTTL)
	} else {
		bank = memory.NewQuizBank(loader, quizTTL)
	}

	links := link.NewBuilder(baseURL)
	rewards := app.NewLedgerRewards(uuid.NewString)
	debates := app.NewDebateService(store, links, rewards)
	quizzes := app.NewQuizService(store, bank, links)

	apiHandler := transport.NewAPIHandler(debates, quizzes)
	wsHandler := transport.NewWSHandler(debates, quizzes)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	apiHandler.Register(mux)
	mux.HandleFunc("/ws/quiz", wsHandler.ServeQuiz)
	mux.HandleFunc("/ws/debate", wsHandler.ServeDebate)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting arena service on :%s", finalPort)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds a minimal bank for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warmup",
			Questions: []domain.Question{
				{
					ID:      "q1",
					Type:    domain.QuestionSingle,
					Prompt:  "What is 2 + 2?",
					Options: []string{"3", "4", "5"},
					Correct: "4",
					Points:  1,
				},
				{
					ID:         "q2",
					Type:       domain.QuestionMultiple,
					Prompt:     "Which of these are prime?",
					Options:    []string{"2", "4", "5", "9"},
					CorrectSet: []string{"2", "5"},
					Points:     1,
				},
			},
		},
	}
}
