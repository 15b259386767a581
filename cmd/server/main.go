package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"imposter-server/internal/ai"
	"imposter-server/internal/config"
	"imposter-server/internal/handler"
	"imposter-server/internal/history"
	"imposter-server/internal/logger"
	"imposter-server/internal/messaging"
)

func main() {
	// .env опционален: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil {
		fmt.Println("Файл .env не найден, используются переменные окружения")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("сервис остановлен с ошибкой", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(rootCtx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier, closeNotifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	caller, err := ai.New(cfg, ai.DefaultRegistry(), log)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	prom := ginprometheus.NewPrometheus("imposter_http")
	prom.Use(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := handler.NewHandler(
		rootCtx,
		store,
		caller,
		notifier,
		log,
		cfg.AIDefaultModel,
		cfg.AIMaxTokens,
		cfg.SSEKeepaliveTimeout,
	)
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP сервер запущен", zap.Int("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ошибка HTTP сервера: %w", err)
	case <-rootCtx.Done():
		log.Info("получен сигнал остановки, завершаем работу")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки HTTP сервера: %w", err)
	}
	log.Info("сервис остановлен")
	return nil
}

// buildStore собирает хранилище истории по конфигурации: память или
// PostgreSQL, опционально обёрнутые Redis-кэшем.
func buildStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (history.Store, error) {
	var store history.Store
	switch cfg.StoreType {
	case "postgres":
		pg, err := history.NewPostgresStore(ctx, cfg.GetDSN(), log)
		if err != nil {
			return nil, err
		}
		store = pg
	case "memory", "":
		log.Info("используется встроенное хранилище партий")
		store = history.NewMemoryStore()
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %q", cfg.StoreType)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		log.Info("Redis-кэш истории включён", zap.String("addr", cfg.RedisAddr))
		store = history.NewCachedStore(store, client, cfg.RedisTTL, log)
	}
	return store, nil
}

// buildNotifier подключает RabbitMQ, если он сконфигурирован.
func buildNotifier(cfg *config.Config, log *zap.Logger) (messaging.Notifier, func(), error) {
	if cfg.RabbitMQURL == "" {
		log.Info("RabbitMQ не сконфигурирован, уведомления отключены")
		return messaging.NopNotifier{}, func() {}, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ошибка открытия канала RabbitMQ: %w", err)
	}
	notifier, err := messaging.NewRabbitMQNotifier(ch, cfg.CompletedQueueName, log)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if err := ch.Close(); err != nil {
			log.Warn("ошибка закрытия канала RabbitMQ", zap.Error(err))
		}
		if err := conn.Close(); err != nil {
			log.Warn("ошибка закрытия соединения RabbitMQ", zap.Error(err))
		}
	}
	return notifier, closeFn, nil
}
