package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nguyenphat006/shopsifu-orders/internal/config"
	"github.com/nguyenphat006/shopsifu-orders/internal/jobs"
	"github.com/nguyenphat006/shopsifu-orders/internal/order"
	"github.com/nguyenphat006/shopsifu-orders/internal/postgres"
	"github.com/nguyenphat006/shopsifu-orders/internal/redisx"
	"github.com/nguyenphat006/shopsifu-orders/internal/shipping"
	"github.com/nguyenphat006/shopsifu-orders/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := jobs.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start()
	queue := &jobs.KafkaQueue{Producer: prod, Service: cfg.ServiceName + "-worker"}

	store := &order.PgStore{DB: db}
	carrier := shipping.NewHTTPCarrierClient(cfg.CarrierBaseURL, cfg.CarrierToken)
	h := &worker.Handlers{
		Store:      store,
		Dispatcher: &shipping.Dispatcher{Store: store, Queue: queue},
		Carrier:    carrier,
		Redis:      rdb,
		Name:       cfg.ServiceName + "-worker",
	}

	group := getenv("WORKER_GROUP", "orders-worker")
	workers := mustAtoi(os.Getenv("WORKER_CONCURRENCY"), "4")

	g, gctx := errgroup.WithContext(ctx)
	consume := func(topic string, handler jobs.Handler) {
		c := jobs.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		g.Go(func() error {
			log.Info().Str("topic", topic).Int("workers", workers).Msg("consumer started")
			return c.Start(gctx, handler)
		})
	}
	consume(jobs.TopicPaymentTimeout, h.HandlePaymentTimeout)
	consume(jobs.TopicCarrierDispatch, h.HandleCarrierDispatch)
	consume(jobs.TopicPaymentConfirmed, h.HandlePaymentConfirmed)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info().Msg("shutting down consumers...")
	case <-gctx.Done():
	}
	cancel()
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("consumer exit")
	}
	prod.Close()
	prod.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
