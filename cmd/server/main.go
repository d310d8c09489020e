// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service
// packages; everything here is construction and shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taxfiling/internal/engines"
	"taxfiling/internal/filing/export"
	filinghandler "taxfiling/internal/filing/handler"
	filingmetrics "taxfiling/internal/filing/metrics"
	"taxfiling/internal/filing/notify"
	"taxfiling/internal/filing/pipeline"
	"taxfiling/internal/filing/service"
	"taxfiling/internal/filing/store"
	"taxfiling/internal/filing/throttle"
	"taxfiling/internal/jwttoken"
	"taxfiling/internal/platform/config"
	"taxfiling/internal/platform/httpserver"
	"taxfiling/internal/platform/logger"
	platformmetrics "taxfiling/internal/platform/metrics"
	platformredis "taxfiling/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var (
		filings store.FilingStore
		drafts  store.DraftStore
		storeTx service.StoreTx
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			fatal(log, "failed to open postgres", err)
		}
		if err := db.PingContext(context.Background()); err != nil {
			fatal(log, "failed to reach postgres", err)
		}
		defer db.Close()
		filings = store.NewPostgresFilingStore(db)
		drafts = store.NewPostgresDraftStore(db)
		storeTx = service.NewSQLTx(db)
		log.Info("using postgres stores")
	} else {
		filings = store.NewInMemoryFilingStore()
		drafts = store.NewInMemoryDraftStore()
		storeTx = service.NewMemoryTx()
		log.Info("using in-memory stores")
	}

	var limiter throttle.Limiter = throttle.NewInMemory(cfg.ComputeLimit, cfg.ComputeWindow)
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		fatal(log, "failed to connect to redis", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		limiter = throttle.NewRedis(redisClient.Client, cfg.ComputeLimit, cfg.ComputeWindow)
		log.Info("using redis compute throttle")
	}

	var publisher notify.Publisher = notify.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			fatal(log, "failed to connect to kafka", err)
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Info("publishing filing events to kafka", "topic", cfg.KafkaTopic)
	}

	outbox := notify.NewOutbox(cfg.OutboxBuffer, log)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go func() {
		if err := notify.NewWorker(outbox, publisher, log).Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("notification worker stopped", "error", err.Error())
		}
	}()

	appMetrics := filingmetrics.New()
	httpMetrics := platformmetrics.NewHTTP()

	eligibility := engines.NewOpenEligibility()
	shapeValidator := engines.NewPayloadShapeValidator()

	draftService := service.New(filings, drafts, eligibility, shapeValidator,
		service.WithLogger(log),
		service.WithMetrics(appMetrics),
		service.WithOutbox(outbox),
		service.WithStoreTx(storeTx),
	)
	orchestrator := pipeline.New(filings, drafts, pipeline.Engines{
		Tax:        engines.NewSlabTaxEngine(),
		Signals:    engines.NewThresholdSignalGenerator(),
		Confidence: engines.NewWeightedConfidenceEngine(),
		Context:    engines.NewBandContextEngine(),
	},
		pipeline.WithLogger(log),
		pipeline.WithMetrics(appMetrics),
		pipeline.WithOutbox(outbox),
		pipeline.WithThrottle(limiter),
		pipeline.WithStoreTx(storeTx),
	)
	exportService := export.New(filings, drafts, engines.Builders(),
		engines.NewSchemaDocumentValidator(), engines.NewBusinessRuleValidator(),
		export.WithLogger(log),
		export.WithMetrics(appMetrics),
		export.WithOutbox(outbox),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "taxfiling", "taxfiling-api")
	jwtValidator := jwttoken.NewMiddlewareAdapter(jwtService)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	filinghandler.New(draftService, orchestrator, exportService, log, httpMetrics, jwtValidator).Register(router)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting taxfiling server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fatal(log, "graceful shutdown failed", err)
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err.Error())
	os.Exit(1)
}
