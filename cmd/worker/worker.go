package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/thenexusengine/tne_leadflow/internal/auction"
	"github.com/thenexusengine/tne_leadflow/internal/buyers"
	lfconfig "github.com/thenexusengine/tne_leadflow/internal/config"
	"github.com/thenexusengine/tne_leadflow/internal/metrics"
	"github.com/thenexusengine/tne_leadflow/internal/queue"
	"github.com/thenexusengine/tne_leadflow/internal/storage"
	"github.com/thenexusengine/tne_leadflow/pkg/logger"
	"github.com/thenexusengine/tne_leadflow/pkg/redis"
)

// Worker wires the queue consumer, auction engine and the health/metrics
// HTTP sidecar together
type Worker struct {
	config      *WorkerConfig
	db          *sql.DB
	redisClient *redis.Client
	metrics     *metrics.Metrics
	engine      *auction.Engine
	consumer    *queue.Consumer
	httpServer  *http.Server
}

// NewWorker creates a worker instance with all dependencies connected
func NewWorker(cfg *WorkerConfig) (*Worker, error) {
	w := &Worker{config: cfg}

	if err := w.initialize(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) initialize() error {
	log := logger.Log

	log.Info().
		Str("port", w.config.Port).
		Strs("kafka_brokers", w.config.KafkaBrokers).
		Str("kafka_topic", w.config.KafkaTopic).
		Dur("auction_timeout", w.config.AuctionTimeout).
		Msg("Initializing leadflow auction worker")

	w.metrics = metrics.NewMetrics("leadflow")

	dbCfg := w.config.DatabaseConfig
	db, err := storage.NewDBConnection(
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Name,
		dbCfg.SSLMode,
	)
	if err != nil {
		return err
	}
	w.db = db
	log.Info().Str("host", dbCfg.Host).Str("db", dbCfg.Name).Msg("PostgreSQL connected")

	// Redis is optional; the cap gate falls back to the transaction log
	if w.config.RedisURL != "" {
		client, err := redis.New(w.config.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis initialization failed, cap checks will use the database")
		} else {
			w.redisClient = client
			log.Info().Msg("Redis connected")
		}
	} else {
		log.Info().Msg("REDIS_URL not set, cap checks will use the database")
	}

	leadStore := storage.NewLeadStore(db)
	buyerStore := storage.NewBuyerStore(db)
	txStore := storage.NewTransactionStore(db)
	historyStore := storage.NewHistoryStore(db)

	caller := buyers.NewCaller(buyers.NewHTTPClient(lfconfig.DefaultBuyerTimeout))
	caps := auction.NewCapGate(w.redisClient, txStore)
	resolver := auction.NewResolver(buyerStore, caps)
	collector := auction.NewCollector(caller, w.config.MaxConcurrentBuyers)

	w.engine = auction.NewEngine(
		leadStore,
		txStore,
		historyStore,
		resolver,
		collector,
		caller,
		caps,
		w.config.AuctionTimeout,
	)
	w.engine.SetMetrics(w.metrics)

	w.consumer = queue.NewConsumer(queue.Config{
		Brokers: w.config.KafkaBrokers,
		Topic:   w.config.KafkaTopic,
		GroupID: w.config.KafkaGroupID,
	})
	w.consumer.SetMetrics(w.metrics)

	w.initHTTPServer()
	return nil
}

func (w *Worker) initHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler())
	mux.Handle("/health/ready", readyHandler(w.db, w.redisClient))
	mux.Handle("/metrics", metrics.Handler())

	w.httpServer = &http.Server{
		Addr:         ":" + w.config.Port,
		Handler:      w.metrics.Middleware(mux),
		ReadTimeout:  lfconfig.ServerReadTimeout,
		WriteTimeout: lfconfig.ServerWriteTimeout,
		IdleTimeout:  lfconfig.ServerIdleTimeout,
	}
}

// Run starts the health server and consumes messages until ctx is
// cancelled
func (w *Worker) Run(ctx context.Context) error {
	log := logger.Log

	go func() {
		log.Info().Str("addr", w.httpServer.Addr).Msg("Health server listening")
		if err := w.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Health server error")
		}
	}()

	log.Info().Str("topic", w.config.KafkaTopic).Str("group", w.config.KafkaGroupID).Msg("Consuming lead messages")
	return w.consumer.Consume(ctx, w.engine.ProcessLead)
}

// Shutdown performs graceful shutdown
func (w *Worker) Shutdown(ctx context.Context) error {
	log := logger.Log
	log.Info().Msg("Starting graceful shutdown")

	if err := w.consumer.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing consumer")
	}

	if err := w.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	if w.redisClient != nil {
		if err := w.redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing redis client")
		}
	}
	if err := w.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing database")
	}

	log.Info().Msg("Worker stopped gracefully")
	return nil
}

// healthHandler returns a simple liveness check
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Log.Error().Err(err).Msg("failed to encode health response")
		}
	})
}

// readyHandler returns a readiness check with dependency verification
func readyHandler(db *sql.DB, redisClient *redis.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]interface{})
		allHealthy := true

		if err := db.PingContext(ctx); err != nil {
			checks["postgres"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			allHealthy = false
		} else {
			checks["postgres"] = map[string]interface{}{
				"status": "healthy",
			}
		}

		if redisClient != nil {
			if err := redisClient.Ping(ctx); err != nil {
				checks["redis"] = map[string]interface{}{
					"status": "unhealthy",
					"error":  err.Error(),
				}
				allHealthy = false
			} else {
				checks["redis"] = map[string]interface{}{
					"status": "healthy",
				}
			}
		} else {
			checks["redis"] = map[string]interface{}{
				"status": "disabled",
			}
		}

		status := http.StatusOK
		if !allHealthy {
			status = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"ready":     allHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Log.Error().Err(err).Msg("failed to encode readiness response")
		}
	})
}
