package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/classnotify/notify-backend/internal/dispatch"
	"github.com/classnotify/notify-backend/internal/store"
	"github.com/classnotify/notify-backend/internal/transport"
	"github.com/classnotify/notify-backend/pkg/config"
	"github.com/classnotify/notify-backend/pkg/db"
	"github.com/classnotify/notify-backend/pkg/logx"
	"github.com/classnotify/notify-backend/pkg/rmq"
	"github.com/classnotify/notify-backend/services/notify-api/server"
)

func main() {
	_ = godotenv.Load()

	logx.Init("notify-api")
	defer logx.Sync()

	cfg := config.MustLoadAPI()

	sqlDB, err := db.Open(cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logx.L().Warnw("db_close_error", "error", err)
		}
	}()

	if err := db.Migrate(cfg.DBDSN, cfg.MigrationsDir); err != nil {
		logx.L().Fatalw("db_migrate_error", "error", err)
	}

	st := store.New(sqlDB)

	pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.EmailQueue)
	if err != nil {
		logx.L().Fatalw("rmq_init_error", "error", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logx.L().Warnw("rmq_publisher_close_error", "error", err)
		}
	}()

	sms := transport.NewTwilioClient(cfg.Twilio)
	disp := dispatch.New(st, st, sms, pub)
	rec := dispatch.NewReconciler(st)

	h := server.NewHandlers(st, disp, rec)
	srv := server.NewHTTPServer(":"+cfg.Port, h)

	go func() {
		logx.L().Infow("api_listen_start", "addr", ":"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.L().Fatalw("http_server_error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logx.L().Infow("signal_received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logx.L().Errorw("server_shutdown_error", "error", err)
	} else {
		logx.L().Infow("server_shutdown_success")
	}
}
