package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classnotify/notify-backend/internal/notify"
	"github.com/classnotify/notify-backend/internal/store"
)

type fakeTemplates struct {
	rows map[int64]*store.TemplateRow
	err  error
}

func (f *fakeTemplates) GetTemplate(_ context.Context, id, userID int64, kind string) (*store.TemplateRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.rows[id]
	if !ok || t.UserID != userID || t.Type != kind {
		return nil, nil
	}
	return t, nil
}

type fakeLogs struct {
	saved   []store.MessageLogRow
	saveErr error
	calls   int
}

func (f *fakeLogs) SaveMessageLogs(_ context.Context, entries []store.MessageLogRow) error {
	f.calls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, entries...)
	return nil
}

type fakeSMS struct {
	failFor map[string]bool
	sent    []string
	n       int
}

func (f *fakeSMS) Send(_ context.Context, to, body string) (string, error) {
	if f.failFor[to] {
		return "", errors.New("provider rejected")
	}
	f.n++
	f.sent = append(f.sent, to)
	return fmt.Sprintf("SM%04d", f.n), nil
}

type fakePublisher struct {
	failNth int // 1-based; 0 = never fail
	n       int
	bodies  [][]byte
}

func (f *fakePublisher) PublishJSON(_ context.Context, body []byte) error {
	f.n++
	if f.failNth != 0 && f.n == f.failNth {
		return errors.New("queue unavailable")
	}
	f.bodies = append(f.bodies, body)
	return nil
}

func smsTemplate(id, userID int64, content string) *store.TemplateRow {
	return &store.TemplateRow{ID: id, UserID: userID, Content: content, Type: notify.ChannelSMS, CreatedAt: time.Now(), UpdatedAt: time.Now()}
}

func emailTemplate(id, userID int64, content string) *store.TemplateRow {
	return &store.TemplateRow{ID: id, UserID: userID, Content: content, Type: notify.ChannelEmail, CreatedAt: time.Now(), UpdatedAt: time.Now()}
}

func threeRecipients() []notify.SMSRecipient {
	var out []notify.SMSRecipient
	for i := 1; i <= 3; i++ {
		out = append(out, notify.SMSRecipient{
			MobileNo:  fmt.Sprintf("+1000000000%d", i),
			Variables: map[string]string{"parent_name": fmt.Sprintf("Parent %d", i)},
		})
	}
	return out
}

var testSender = Sender{UserID: 7, Name: "Ms. Rao", SchoolName: "Green Valley"}

func TestDispatchSMS_AllSucceed(t *testing.T) {
	logs := &fakeLogs{}
	sms := &fakeSMS{}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{1: smsTemplate(1, 7, "Hi {parent_name}")}}, logs, sms, nil)

	res, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 1, Recipients: threeRecipients()}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.SuccessCount)
	require.False(t, res.Partial())
	require.Len(t, logs.saved, 3)
	for i, e := range logs.saved {
		require.True(t, e.Status)
		require.True(t, e.SID.Valid)
		require.Equal(t, "sms", e.MessageType)
		require.Equal(t, fmt.Sprintf("Hi Parent %d", i+1), e.Content)
	}
	// sends happen in submission order
	require.Equal(t, []string{"+10000000001", "+10000000002", "+10000000003"}, sms.sent)
}

func TestDispatchSMS_PartialFailure(t *testing.T) {
	logs := &fakeLogs{}
	sms := &fakeSMS{failFor: map[string]bool{"+10000000002": true}}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{1: smsTemplate(1, 7, "Hi {parent_name}")}}, logs, sms, nil)

	res, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 1, Recipients: threeRecipients()}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.SuccessCount)
	require.Equal(t, []string{"+10000000002"}, res.Failed)

	// one log entry per attempt, success or not
	require.Len(t, logs.saved, 3)
	var ok, failed int
	for _, e := range logs.saved {
		if e.Status {
			ok++
			require.True(t, e.SID.Valid)
		} else {
			failed++
			require.False(t, e.SID.Valid)
		}
	}
	require.Equal(t, 2, ok)
	require.Equal(t, 1, failed)
}

func TestDispatchSMS_AllFailStillPartialPath(t *testing.T) {
	logs := &fakeLogs{}
	sms := &fakeSMS{failFor: map[string]bool{"+10000000001": true, "+10000000002": true, "+10000000003": true}}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{1: smsTemplate(1, 7, "Hi {parent_name}")}}, logs, sms, nil)

	res, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 1, Recipients: threeRecipients()}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.SuccessCount)
	require.Len(t, res.Failed, 3)
	require.Len(t, logs.saved, 3)
}

func TestDispatchSMS_MissingVariableAbortsWholeRequest(t *testing.T) {
	logs := &fakeLogs{}
	sms := &fakeSMS{}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{1: smsTemplate(1, 7, "Hi {parent_name}, {student_name} absent")}}, logs, sms, nil)

	recipients := threeRecipients()
	// recipient 1 lacks student_name; 2 and 3 have it and would render fine
	recipients[1].Variables["student_name"] = "Ravi"
	recipients[2].Variables["student_name"] = "Mina"

	_, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 1, Recipients: recipients}},
	})
	var mv *notify.MissingVariablesError
	require.ErrorAs(t, err, &mv)
	require.Equal(t, "+10000000001", mv.Recipient)
	require.Equal(t, []string{"student_name"}, mv.Missing)

	require.Zero(t, sms.n, "no sends before the abort")
	require.Empty(t, logs.saved, "no log entries for an aborted group")
	require.Zero(t, logs.calls)
}

func TestDispatchSMS_TemplateNotFound(t *testing.T) {
	logs := &fakeLogs{}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{}}, logs, &fakeSMS{}, nil)

	_, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 99, Recipients: threeRecipients()}},
	})
	var nf *TemplateNotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, int64(99), nf.TemplateID)
	require.Empty(t, logs.saved)
}

func TestDispatchSMS_WrongOwnerIsNotFound(t *testing.T) {
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{1: smsTemplate(1, 999, "Hi {parent_name}")}}, &fakeLogs{}, &fakeSMS{}, nil)

	_, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 1, Recipients: threeRecipients()}},
	})
	var nf *TemplateNotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDispatchSMS_MissingAddressIsSoftFailure(t *testing.T) {
	logs := &fakeLogs{}
	sms := &fakeSMS{}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{1: smsTemplate(1, 7, "Hi {parent_name}")}}, logs, sms, nil)

	recipients := threeRecipients()
	recipients[0].MobileNo = ""

	res, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 1, Recipients: recipients}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.SuccessCount)
	require.Equal(t, []string{"Missing mobile number for recipient: Parent 1"}, res.Failed)
	// no attempt, no log entry for the address-less recipient
	require.Len(t, logs.saved, 2)
}

func TestDispatchSMS_SystemVariablesInjected(t *testing.T) {
	logs := &fakeLogs{}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{1: smsTemplate(1, 7, "{teacher_name} of {school_name}: hi {parent_name}")}}, logs, &fakeSMS{}, nil)

	res, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 1, Recipients: threeRecipients()[:1]}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.SuccessCount)
	require.Equal(t, "Ms. Rao of Green Valley: hi Parent 1", logs.saved[0].Content)
}

func TestDispatchSMS_PersistFailureIsRequestError(t *testing.T) {
	logs := &fakeLogs{saveErr: errors.New("commit failed")}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{1: smsTemplate(1, 7, "Hi {parent_name}")}}, logs, &fakeSMS{}, nil)

	_, err := d.DispatchSMS(context.Background(), testSender, notify.SMSRequest{
		Groups: []notify.SMSGroup{{TemplateID: 1, Recipients: threeRecipients()}},
	})
	require.Error(t, err)
}

func emailRequest(n int) notify.EmailRequest {
	g := notify.EmailGroup{TemplateID: 2, Subject: "Fee reminder"}
	for i := 1; i <= n; i++ {
		g.Recipients = append(g.Recipients, notify.EmailRecipient{
			Email:     fmt.Sprintf("p%d@example.com", i),
			Variables: map[string]string{"parent_name": fmt.Sprintf("Parent %d", i)},
		})
	}
	return notify.EmailRequest{Groups: []notify.EmailGroup{g}}
}

func TestDispatchEmail_EnqueuesOneJobPerRecipient(t *testing.T) {
	logs := &fakeLogs{}
	pub := &fakePublisher{}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{2: emailTemplate(2, 7, "Dear {parent_name},\nfees are due.")}}, logs, nil, pub)

	res, err := d.DispatchEmail(context.Background(), testSender, emailRequest(3))
	require.NoError(t, err)
	require.Equal(t, 3, res.SuccessCount)
	require.Equal(t, 3, len(pub.bodies))

	require.Len(t, logs.saved, 3)
	for _, e := range logs.saved {
		require.True(t, e.Status)
		require.Equal(t, "email", e.MessageType)
		require.Equal(t, "Fee reminder", e.Subject.String)
		// the log stores the filled text, newline intact
		require.Contains(t, e.Content, ",\nfees are due.")
		require.False(t, e.SID.Valid, "email rows carry no provider sid")
	}
	// the queued job carries the HTML view
	var job notify.EmailJob
	require.NoError(t, json.Unmarshal(pub.bodies[0], &job))
	require.Contains(t, job.HTMLBody, "fees are due.")
	require.Contains(t, job.HTMLBody, "<br>")
}

func TestDispatchEmail_EnqueueFailureIsSoftFailure(t *testing.T) {
	logs := &fakeLogs{}
	pub := &fakePublisher{failNth: 2}
	d := New(&fakeTemplates{rows: map[int64]*store.TemplateRow{2: emailTemplate(2, 7, "Dear {parent_name}")}}, logs, nil, pub)

	res, err := d.DispatchEmail(context.Background(), testSender, emailRequest(3))
	require.NoError(t, err)
	require.Equal(t, 2, res.SuccessCount)
	require.Equal(t, []string{"p2@example.com"}, res.Failed)

	require.Len(t, logs.saved, 3)
	require.True(t, logs.saved[0].Status)
	require.False(t, logs.saved[1].Status)
	require.True(t, logs.saved[2].Status)
}

func TestDispatchEmail_MultipleGroups(t *testing.T) {
	logs := &fakeLogs{}
	pub := &fakePublisher{}
	templates := &fakeTemplates{rows: map[int64]*store.TemplateRow{
		2: emailTemplate(2, 7, "Dear {parent_name}"),
		3: emailTemplate(3, 7, "Hello {parent_name}"),
	}}
	d := New(templates, logs, nil, pub)

	req := emailRequest(2)
	req.Groups = append(req.Groups, notify.EmailGroup{
		TemplateID: 3,
		Subject:    "Holiday notice",
		Recipients: []notify.EmailRecipient{{
			Email:     "x@example.com",
			Variables: map[string]string{"parent_name": "Zo"},
		}},
	})

	res, err := d.DispatchEmail(context.Background(), testSender, req)
	require.NoError(t, err)
	require.Equal(t, 3, res.SuccessCount)
	require.Len(t, logs.saved, 3)
	require.Equal(t, "Holiday notice", logs.saved[2].Subject.String)
	require.Equal(t, 1, logs.calls, "one commit for the whole request")
}
