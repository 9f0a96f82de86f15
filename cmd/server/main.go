package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	c "github.com/jonatasvenancio167/shopping-cart-backend/internal/cache"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/catalog"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/event"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/httpapi"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/repository"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/scheduler"
	s "github.com/jonatasvenancio167/shopping-cart-backend/internal/service"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/subscriber"
	"github.com/jonatasvenancio167/shopping-cart-backend/internal/sweeper"
)

type Config struct {
	HTTPPort        string
	MongoURI        string
	MongoDBName     string
	Mongo           repository.MongoOptions
	RedisAddr       string
	RedisPassword   string
	CacheTTL        time.Duration
	CatalogDBPath   string
	MigrationsPath  string
	KafkaBrokers    []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "cartdb"),
		Mongo: repository.MongoOptions{
			ConnectTimeout:         getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
			ServerSelectionTimeout: getEnvDuration("MONGO_SELECT_TIMEOUT", 5*time.Second),
			MaxPoolSize:            uint64(getEnvInt("MONGO_MAX_POOL_SIZE", 100)),
			MinPoolSize:            uint64(getEnvInt("MONGO_MIN_POOL_SIZE", 10)),
		},
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		CacheTTL:        getEnvDuration("CACHE_TTL", 15*time.Minute),
		CatalogDBPath:   getEnv("CATALOG_DB_PATH", "catalog.db"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("invalid %s=%q, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("invalid %s=%q, using %s", key, value, defaultValue)
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName, cfg.Mongo)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if err := repository.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}
	repo := repository.NewMongoRepository(mongoDB)
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	// Redis cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")
	cartCache := c.NewRedisCache(redisClient, cfg.CacheTTL)

	// Product catalog
	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run catalog migrations: %v", err)
	}

	// Event bus with all subscribers registered up front; nothing else may
	// register after startup.
	bus := event.NewBus()

	var analyticsWriter *subscriber.Analytics
	if len(cfg.KafkaBrokers) > 0 {
		writer := subscriber.NewCartEventsWriter(cfg.KafkaBrokers...)
		defer writer.Close()
		analyticsWriter = subscriber.NewAnalytics(writer)
		log.Printf("Forwarding cart events to kafka at %v", cfg.KafkaBrokers)
	} else {
		analyticsWriter = subscriber.NewAnalytics(nil)
	}
	analyticsWriter.Register(bus)
	subscriber.NewNotification().Register(bus)
	subscriber.NewInventory().Register(bus)

	service := s.NewCartService(repo, cartCache, products, bus)

	sched := scheduler.New(service, scheduler.DefaultThreshold)
	sched.Register(bus)
	defer sched.Close()

	sweep := sweeper.New(repo, service,
		sweeper.DefaultAbandonAfter, sweeper.DefaultRetainFor, sweeper.DefaultBatchSize)
	if err := sweep.Start(); err != nil {
		log.Fatalf("Failed to start cleanup sweep: %v", err)
	}
	defer sweep.Stop()

	// Setup router
	handler := httpapi.NewCartHandler(service, products, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httpapi.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "cart-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Cart service listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cart service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	mongoDB.Client().Disconnect(shutdownCtx)
	log.Println("Cart service stopped")
}
