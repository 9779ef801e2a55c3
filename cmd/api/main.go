package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adiwidodo/go-marketplace-orders/internal/auth"
	"github.com/adiwidodo/go-marketplace-orders/internal/config"
	"github.com/adiwidodo/go-marketplace-orders/internal/httpx"
	kafkax "github.com/adiwidodo/go-marketplace-orders/internal/kafka"
	"github.com/adiwidodo/go-marketplace-orders/internal/orders"
	"github.com/adiwidodo/go-marketplace-orders/internal/postgres"
	"github.com/adiwidodo/go-marketplace-orders/internal/redisx"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	placed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	placed.Start(ctx)
	status := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	status.Start(ctx)

	// Repo & handler
	repo := &orders.Repo{DB: db}
	verifier := auth.NewVerifier(cfg.AuthSecret)
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Store:         repo,
		Placed:        placed,
		StatusChanged: status,
		Cache:         redisx.Cache{R: rdb},
		Log:           log,
		Service:       cfg.ServiceName,
	}
	oh.Register(router, verifier)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	placed.Close() // close inbox -> flush & close writer
	status.Close()
	cancel()
	placed.WaitClosed()
	status.WaitClosed()
}
