package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/classnotify/notify-backend/internal/notify"
)

type fakeMailer struct {
	err  error
	sent []notify.EmailJob
}

func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notify.EmailJob{To: to, Subject: subject, HTMLBody: htmlBody})
	return nil
}

type fakeAcker struct {
	acks, nacks int
	requeued    bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error { f.acks++; return nil }
func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	f.requeued = requeue
	return nil
}
func (f *fakeAcker) Reject(tag uint64, requeue bool) error { return nil }

func delivery(t *testing.T, job notify.EmailJob, headers amqp.Table, ack *fakeAcker) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	return amqp.Delivery{Acknowledger: ack, Body: body, Headers: headers}
}

func TestProcess_SendsAndAcks(t *testing.T) {
	m := &fakeMailer{}
	w := &Worker{Mailer: m}
	ack := &fakeAcker{}

	job := notify.EmailJob{To: "p@example.com", Subject: "Fees", HTMLBody: "<html>due</html>"}
	w.process(context.Background(), delivery(t, job, nil, ack))

	if len(m.sent) != 1 || m.sent[0] != job {
		t.Fatalf("sent=%+v", m.sent)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

func TestProcess_BadPayloadAcked(t *testing.T) {
	m := &fakeMailer{}
	w := &Worker{Mailer: m}
	ack := &fakeAcker{}

	w.process(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})

	if len(m.sent) != 0 {
		t.Fatalf("mailer called on malformed payload")
	}
	if ack.acks != 1 {
		t.Fatalf("malformed payload must be acked, acks=%d", ack.acks)
	}
}

func TestProcess_DroppedAfterMaxRetries(t *testing.T) {
	m := &fakeMailer{err: errors.New("smtp down")}
	w := &Worker{Mailer: m}
	ack := &fakeAcker{}

	headers := amqp.Table{"x-retries": int32(maxRetries)}
	w.process(context.Background(), delivery(t, notify.EmailJob{To: "p@example.com"}, headers, ack))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("exhausted job must be ack-dropped, acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

func TestHeaderRetries(t *testing.T) {
	cases := []struct {
		headers amqp.Table
		want    int
	}{
		{nil, 0},
		{amqp.Table{}, 0},
		{amqp.Table{"x-retries": int32(2)}, 2},
		{amqp.Table{"x-retries": int64(3)}, 3},
		{amqp.Table{"x-retries": "2"}, 0},
	}
	for _, c := range cases {
		if got := headerRetries(c.headers); got != c.want {
			t.Fatalf("headerRetries(%v)=%d, want %d", c.headers, got, c.want)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		retries int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}
	for _, c := range cases {
		if got := backoffDelay(c.retries); got != c.want {
			t.Fatalf("backoffDelay(%d)=%s, want %s", c.retries, got, c.want)
		}
	}
}

func TestSetHeaderRetries(t *testing.T) {
	var h amqp.Table
	setHeaderRetries(&h, 2)
	if h["x-retries"] != int32(2) {
		t.Fatalf("headers=%v", h)
	}

	src := amqp.Table{"x-retries": int32(1), "trace": "abc"}
	dup := copyHeaders(src)
	setHeaderRetries(&dup, 2)
	if src["x-retries"] != int32(1) {
		t.Fatalf("source headers mutated: %v", src)
	}
	if dup["x-retries"] != int32(2) || dup["trace"] != "abc" {
		t.Fatalf("dup=%v", dup)
	}
}
