package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/adiwidodo/go-marketplace-orders/internal/config"
	kafkax "github.com/adiwidodo/go-marketplace-orders/internal/kafka"
	"github.com/adiwidodo/go-marketplace-orders/internal/orders"
	"github.com/adiwidodo/go-marketplace-orders/internal/redisx"
	"github.com/adiwidodo/go-marketplace-orders/internal/worker"
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

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &worker.Service{
		Cache:       redisx.Cache{R: rdb},
		Log:         log,
		ServiceName: cfg.ServiceName + "-worker",
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.TopicOrderPlaced, cfg.WorkerCount)

	go func() {
		log.WithFields(logrus.Fields{
			"group":   cfg.WorkerGroup,
			"topic":   orders.TopicOrderPlaced,
			"workers": cfg.WorkerCount,
		}).Info("stats worker started")
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			log.WithError(err).Error("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down worker...")
	cancel()
}
