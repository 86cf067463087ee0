package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nguyenphat006/shopsifu-orders/internal/config"
	"github.com/nguyenphat006/shopsifu-orders/internal/discount"
	"github.com/nguyenphat006/shopsifu-orders/internal/httpx"
	"github.com/nguyenphat006/shopsifu-orders/internal/jobs"
	"github.com/nguyenphat006/shopsifu-orders/internal/order"
	"github.com/nguyenphat006/shopsifu-orders/internal/postgres"
	"github.com/nguyenphat006/shopsifu-orders/internal/redisx"
	"github.com/nguyenphat006/shopsifu-orders/internal/shipping"
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
	queue := &jobs.KafkaQueue{Producer: prod, Service: cfg.ServiceName}

	store := &order.PgStore{DB: db}
	carrier := shipping.NewHTTPCarrierClient(cfg.CarrierBaseURL, cfg.CarrierToken)
	dispatcher := &shipping.Dispatcher{Store: store, Queue: queue}

	checkout := &order.Checkout{
		Store:          store,
		Locker:         &redisx.RedisLocker{RDB: rdb},
		Discounts:      &discount.Validator{Repo: &discount.PgRepo{DB: db}},
		Queue:          queue,
		Dispatch:       dispatcher,
		LockTTL:        cfg.SKULockTTL,
		PaymentTimeout: cfg.PaymentTimeout,
	}
	orders := &order.Service{Store: store, Carrier: carrier, Redis: rdb}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Checkout: checkout, Orders: orders}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // flush pending job messages
	prod.WaitClosed()
}
