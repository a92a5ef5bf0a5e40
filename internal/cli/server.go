package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"lms-quiz-engine/internal/app"
	"lms-quiz-engine/internal/config"
	"lms-quiz-engine/internal/infra/memory"
	pgstore "lms-quiz-engine/internal/infra/postgres"
	redisinfra "lms-quiz-engine/internal/infra/redis"
	transport "lms-quiz-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz engine server",
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// Stores: Postgres when configured, in-memory otherwise (demos, tests).
	var (
		quizStore    app.QuizStore
		attemptStore app.AttemptStore
		loader       memory.QuizLoader
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		quizStore = pgstore.NewQuizStore(db)
		attemptStore = pgstore.NewAttemptStore(db)
		loader = pgstore.NewQuizLoader(pool)
	} else {
		memQuizzes := memory.NewQuizStore()
		quizStore = memQuizzes
		attemptStore = memory.NewAttemptStore()
		loader = memQuizzes
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizCache(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizCache(loader, quizTTL)
	}

	hub := app.NewHub()
	publishers := app.Fanout{hub}
	if redisClient != nil {
		publishers = append(publishers, redisinfra.NewPublisher(redisClient))
	}

	aggregator := app.NewAggregator(quizStore, attemptStore)
	quizService := app.NewQuizService(quizStore, quizRepo, attemptStore)
	attemptService := app.NewAttemptService(quizRepo, attemptStore, aggregator, publishers)

	handler := transport.NewHandler(quizService, attemptService)
	eventsHandler := transport.NewEventsHandler(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/completions", eventsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	startSweep(sweepCtx, attemptService, cfg)

	go func() {
		log.Printf("starting quiz engine on :%s", finalPort)
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

// startSweep runs the stale-attempt sweep on an interval. Housekeeping only:
// correctness never depends on it, so it is off unless configured.
func startSweep(ctx context.Context, attempts *app.AttemptService, cfg config.Config) {
	interval := config.Duration(cfg.Attempts.SweepInterval, 0)
	if interval <= 0 {
		return
	}
	grace := config.Duration(cfg.Attempts.Grace, time.Hour)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				swept, err := attempts.AbandonStale(ctx, grace)
				if err != nil {
					log.Printf("abandon sweep: %v", err)
				} else if swept > 0 {
					log.Printf("abandoned %d stale attempts", swept)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
