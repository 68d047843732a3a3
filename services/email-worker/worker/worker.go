package worker

import (
	"context"
	"encoding/json"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/classnotify/notify-backend/internal/notify"
	"github.com/classnotify/notify-backend/pkg/logx"
	"github.com/classnotify/notify-backend/pkg/metrics"
	"github.com/classnotify/notify-backend/pkg/rmq"
)

const maxRetries = 3

type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// Worker drains the email queue and sends over SMTP. It never writes back
// to message_logs: the logged email status is the enqueue outcome, and there
// is no async reconciliation for the email channel.
type Worker struct {
	Mailer Mailer
	Cons   *rmq.Consumer
	Pub    *rmq.Publisher
}

func New(m Mailer, cons *rmq.Consumer, pub *rmq.Publisher) *Worker {
	return &Worker{Mailer: m, Cons: cons, Pub: pub}
}

func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.Cons.Consume()
	if err != nil {
		return err
	}
	logx.L().Infow("worker_started", "queue", w.Cons.Queue)

	for {
		select {
		case <-ctx.Done():
			logx.L().Infow("worker_stopping")
			return ctx.Err()

		case d, ok := <-msgs:
			if !ok {
				logx.L().Warnw("consumer_channel_closed")
				return nil
			}
			w.process(ctx, d)
		}
	}
}

func (w *Worker) process(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	defer func() {
		metrics.WorkerProcessDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.WorkerJobsConsumed.Inc()

	var job notify.EmailJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		logx.L().Warnw("job_unmarshal_error", "error", err)
		_ = d.Ack(false)
		return
	}
	fields := []any{"to", job.To, "subject", job.Subject}

	if err := w.Mailer.Send(job.To, job.Subject, job.HTMLBody); err != nil {
		logx.L().Infow("send_failed", append(fields, "error", err)...)
		metrics.WorkerJobsFailed.Inc()

		retries := headerRetries(d.Headers)
		if retries < maxRetries {
			delay := backoffDelay(retries)
			metrics.WorkerJobRetries.Inc()
			logx.L().Infow("retry_requeue", append(fields, "retries", retries+1, "delay", delay.String())...)
			if err := w.requeue(ctx, d, retries+1, delay); err != nil {
				logx.L().Errorw("retry_publish_error", append(fields, "retries", retries+1, "error", err)...)
				_ = d.Nack(false, true)
			}
		} else {
			logx.L().Warnw("drop_after_retries", append(fields, "retries", retries)...)
			_ = d.Ack(false)
		}
		return
	}

	metrics.WorkerJobsSent.Inc()
	logx.L().Infow("send_success", fields...)
	_ = d.Ack(false)
}

func (w *Worker) requeue(ctx context.Context, d amqp.Delivery, retries int, delay time.Duration) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	headers := copyHeaders(d.Headers)
	setHeaderRetries(&headers, retries)

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Pub.PublishJSONWithHeaders(pubCtx, d.Body, headers); err != nil {
		return err
	}

	return d.Ack(false)
}

func headerRetries(h amqp.Table) int {
	if h == nil {
		return 0
	}
	if v, ok := h["x-retries"]; ok {
		switch t := v.(type) {
		case int32:
			return int(t)
		case int64:
			return int(t)
		case int:
			return t
		case uint8:
			return int(t)
		}
	}
	return 0
}

func setHeaderRetries(h *amqp.Table, n int) {
	if *h == nil {
		*h = amqp.Table{}
	}
	(*h)["x-retries"] = int32(n)
}

func backoffDelay(retries int) time.Duration {
	if retries <= 0 {
		return 0
	}
	sec := math.Pow(2, float64(retries-1))
	return time.Duration(sec) * time.Second
}

func copyHeaders(h amqp.Table) amqp.Table {
	if h == nil {
		return amqp.Table{}
	}
	dup := make(amqp.Table, len(h))
	for k, v := range h {
		dup[k] = v
	}
	return dup
}
