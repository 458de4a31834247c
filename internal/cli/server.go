package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/config"
	"timed-quiz-service/internal/infra/memory"
	"timed-quiz-service/internal/infra/postgres"
	infraredis "timed-quiz-service/internal/infra/redis"
	transport "timed-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backing holds the optional external stores and how to release them.
type backing struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	db    *bun.DB
}

func (b *backing) Close() {
	if b.db != nil {
		_ = b.db.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg, os.Stderr)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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

	ctx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()

	deps, service, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", "addr", server.Addr, "quiz_id", cfg.Quiz.ID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildService picks the quiz loader, cache and attempt store from what the
// config enables: Postgres for durable content and attempts, Redis for the
// quiz cache, attempts without Postgres, and cross-instance events.
func buildService(ctx context.Context, cfg config.Config, log *slog.Logger) (*backing, *app.QuizService, error) {
	deps := &backing{}

	if cfg.Redis.Addr != "" {
		deps.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			deps.Close()
			return nil, nil, err
		}
		deps.pool = pool
		deps.db = openBun(cfg)
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(builtinQuiz(cfg))
	if deps.pool != nil {
		loader = postgres.NewQuizLoader(deps.pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if deps.redis != nil {
		quizRepo = infraredis.NewQuizRepository(deps.redis, loader, config.TTLDuration(cfg.Redis.TTL, quizTTL))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var attempts app.AttemptRepository
	switch {
	case deps.db != nil:
		attempts = postgres.NewAttemptStore(deps.db)
	case deps.redis != nil:
		attempts = infraredis.NewAttemptStore(deps.redis, config.TTLDuration(cfg.Redis.AttemptTTL, 24*time.Hour))
	default:
		log.Warn("no durable store configured, attempts live in memory")
		attempts = memory.NewAttemptStore()
	}

	feed := app.NewFeed()
	opts := []app.Option{app.WithFeed(feed), app.WithLogger(log)}
	if deps.redis != nil {
		bus := infraredis.NewEventBus(deps.redis, log)
		opts = append(opts, app.WithEventPublisher(bus))
		go func() {
			if err := bus.Relay(ctx, feed, nil); err != nil {
				log.Error("attempt event relay stopped", "error", err)
			}
		}()
	}

	return deps, app.NewQuizService(cfg.Quiz.ID, quizRepo, attempts, opts...), nil
}
