package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-flow-api/internal/cache"
	"github.com/BuzzLyutic/task-flow-api/internal/config"
	"github.com/BuzzLyutic/task-flow-api/internal/handler"
	"github.com/BuzzLyutic/task-flow-api/internal/notifier"
	"github.com/BuzzLyutic/task-flow-api/internal/repo"
	"github.com/BuzzLyutic/task-flow-api/internal/service"
	"github.com/BuzzLyutic/task-flow-api/internal/sweeper"
)

func main() {
	// Подключаем логгер
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Загрузка конфигурации
	cfg := config.Load()

	// Подключаем БД
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to Database.") // Fatal потому что дальнейшая работа теряет смысл
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal("Failed to ping the Database.")
	}
	logger.Info("Successfully connected to the Database!")

	// Сборка ядра: стор -> кэш -> нотификатор -> сервис -> sweeper
	taskRepo := repo.NewTaskRepo(pool, cfg.StoreTimeout)
	leaseRepo := repo.NewLeaseRepo(pool)
	taskCache := cache.New(cfg.CacheNamespace, cfg.CacheTTL, logger)
	taskNotifier := notifier.New(pool, cfg.NotifyChannel, logger)
	fanout := service.NewChangeFanout(taskCache, taskNotifier)
	taskService := service.NewTaskService(taskRepo, taskCache, fanout, cfg.CacheTTL, logger)
	taskHandler := handler.NewTaskHandler(taskService, logger)

	sweep := sweeper.New(sweeper.Config{
		Repo:      taskRepo,
		Leases:    leaseRepo,
		Fanout:    fanout,
		Logger:    logger,
		Interval:  cfg.SweepInterval,
		LeaseTTL:  cfg.SweepLeaseTTL,
		BatchSize: cfg.SweepBatchSize,
	})

	r := chi.NewRouter() // Создаем роутер
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.Create)
		r.Get("/", taskHandler.List)
		r.Get("/{id}", taskHandler.Get)
		r.Patch("/{id}", taskHandler.Update)
		r.Delete("/{id}", taskHandler.Delete)
	})
	r.Get("/api/stats", taskHandler.Stats)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	if err := sweep.Start(sweepCtx); err != nil {
		logger.Fatal("Sweeper failed to start: ", zap.Error(err))
	}

	srv := http.Server{ // Создаем сервер
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() { // Запуск сервера и обработка ошибок
		logger.Info("Server started at ", zap.String("port", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed: ", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	sweep.Stop()
	sweepCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Shutdown error: ", zap.Error(err))
	}
	logger.Info("Server stopped succsessfully!")
}
