package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/classnotify/notify-backend/internal/transport"
	"github.com/classnotify/notify-backend/pkg/config"
	"github.com/classnotify/notify-backend/pkg/logx"
	"github.com/classnotify/notify-backend/pkg/rmq"
	"github.com/classnotify/notify-backend/services/email-worker/worker"
)

func main() {
	_ = godotenv.Load()

	logx.Init("email-worker")
	defer logx.Sync()

	cfg := config.MustLoadWorker()

	cons, err := rmq.NewConsumer(cfg.RMQURL, cfg.EmailQueue)
	if err != nil {
		logx.L().Fatalw("rmq_consumer_error", "error", err)
	}
	defer cons.Close()

	pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.EmailQueue)
	if err != nil {
		logx.L().Fatalw("rmq_publisher_error", "error", err)
	}
	defer pub.Close()

	w := worker.New(transport.NewMailer(cfg.SMTP), cons, pub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		logx.L().Fatalw("worker_error", "error", err)
	}
}
