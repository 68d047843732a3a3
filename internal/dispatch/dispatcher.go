package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/classnotify/notify-backend/internal/notify"
	"github.com/classnotify/notify-backend/internal/store"
	"github.com/classnotify/notify-backend/pkg/logx"
	"github.com/classnotify/notify-backend/pkg/metrics"
)

// TemplateNotFoundError aborts the whole request before any recipient is
// processed: a template id that does not exist, is owned by someone else or
// has the wrong channel type.
type TemplateNotFoundError struct {
	TemplateID int64
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %d not found", e.TemplateID)
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, id, userID int64, kind string) (*store.TemplateRow, error)
}

type LogStore interface {
	SaveMessageLogs(ctx context.Context, entries []store.MessageLogRow) error
}

// SMSSender is the synchronous SMS transport. The sid it returns correlates
// the log row with later delivery-status callbacks.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (sid string, err error)
}

// EmailPublisher hands rendered emails to the background send path. Enqueue
// is the transport attempt the delivery log records for email.
type EmailPublisher interface {
	PublishJSON(ctx context.Context, body []byte) error
}

// Sender is the authenticated caller on whose behalf a dispatch runs.
type Sender struct {
	UserID     int64
	Name       string
	SchoolName string
}

type Result struct {
	SuccessCount int
	Failed       []string
}

// Partial reports whether any recipient soft-failed. A request where every
// recipient failed still goes through this path; each send was attempted.
func (r *Result) Partial() bool { return len(r.Failed) > 0 }

type Dispatcher struct {
	Templates TemplateStore
	Logs      LogStore
	SMS       SMSSender
	Email     EmailPublisher
}

func New(templates TemplateStore, logs LogStore, sms SMSSender, email EmailPublisher) *Dispatcher {
	return &Dispatcher{Templates: templates, Logs: logs, SMS: sms, Email: email}
}

// recipientIdentifier names a recipient in soft-failure messages when the
// address itself is missing. parent_name is guaranteed non-empty by request
// validation upstream.
func recipientIdentifier(vars map[string]string) string {
	if n := vars["parent_name"]; n != "" {
		return n
	}
	return fmt.Sprintf("%v", vars)
}

// DispatchEmail processes every group sequentially, renders each recipient
// and enqueues one email job per successful render. Log rows for all
// attempts are persisted in a single transaction at the end; caller-input
// defects (missing template, missing variables, bad template syntax) abort
// the whole request with no rows persisted.
func (d *Dispatcher) DispatchEmail(ctx context.Context, sender Sender, req notify.EmailRequest) (*Result, error) {
	res := &Result{}
	var entries []store.MessageLogRow

	for _, group := range req.Groups {
		tmpl, err := d.Templates.GetTemplate(ctx, group.TemplateID, sender.UserID, notify.ChannelEmail)
		if err != nil {
			return nil, fmt.Errorf("resolve template %d: %w", group.TemplateID, err)
		}
		if tmpl == nil {
			return nil, &TemplateNotFoundError{TemplateID: group.TemplateID}
		}

		for _, rcpt := range group.Recipients {
			if rcpt.Email == "" {
				res.Failed = append(res.Failed,
					fmt.Sprintf("Missing email for recipient: %s", recipientIdentifier(rcpt.Variables)))
				continue
			}

			merged := notify.MergeSystemVars(rcpt.Variables, sender.Name, sender.SchoolName)
			rendered, err := notify.Render(tmpl.Content, merged)
			if err != nil {
				var mv *notify.MissingVariablesError
				if errors.As(err, &mv) {
					mv.Recipient = rcpt.Email
				}
				return nil, err
			}

			entry := store.MessageLogRow{
				UserID:        sender.UserID,
				MessageType:   "email",
				Recipient:     rcpt.Email,
				RecipientName: merged["parent_name"],
				Subject:       sql.NullString{String: group.Subject, Valid: true},
				Content:       rendered.Filled,
			}

			payload, err := json.Marshal(notify.EmailJob{
				To:       rcpt.Email,
				Subject:  group.Subject,
				HTMLBody: rendered.HTML,
			})
			if err != nil {
				return nil, fmt.Errorf("marshal email job: %w", err)
			}

			if err := d.Email.PublishJSON(ctx, payload); err != nil {
				logx.L().Errorw("email_enqueue_failed", "recipient", rcpt.Email, "template_id", tmpl.ID, "error", err)
				metrics.MessagesFailedTotal.WithLabelValues("email").Inc()
				res.Failed = append(res.Failed, rcpt.Email)
			} else {
				metrics.MessagesSentTotal.WithLabelValues("email").Inc()
				metrics.EmailJobsPublishedTotal.Inc()
				entry.Status = true
				res.SuccessCount++
			}
			entries = append(entries, entry)
		}
	}

	if err := d.Logs.SaveMessageLogs(ctx, entries); err != nil {
		logx.L().Errorw("message_log_commit_failed", "entries", len(entries), "error", err)
		return nil, fmt.Errorf("persist delivery log: %w", err)
	}
	return res, nil
}

// DispatchSMS mirrors DispatchEmail with a synchronous transport: the send
// happens in-request so the returned sid can be stored for reconciliation.
func (d *Dispatcher) DispatchSMS(ctx context.Context, sender Sender, req notify.SMSRequest) (*Result, error) {
	res := &Result{}
	var entries []store.MessageLogRow

	for _, group := range req.Groups {
		tmpl, err := d.Templates.GetTemplate(ctx, group.TemplateID, sender.UserID, notify.ChannelSMS)
		if err != nil {
			return nil, fmt.Errorf("resolve template %d: %w", group.TemplateID, err)
		}
		if tmpl == nil {
			return nil, &TemplateNotFoundError{TemplateID: group.TemplateID}
		}

		for _, rcpt := range group.Recipients {
			if rcpt.MobileNo == "" {
				res.Failed = append(res.Failed,
					fmt.Sprintf("Missing mobile number for recipient: %s", recipientIdentifier(rcpt.Variables)))
				continue
			}

			merged := notify.MergeSystemVars(rcpt.Variables, sender.Name, sender.SchoolName)
			rendered, err := notify.Render(tmpl.Content, merged)
			if err != nil {
				var mv *notify.MissingVariablesError
				if errors.As(err, &mv) {
					mv.Recipient = rcpt.MobileNo
				}
				return nil, err
			}

			entry := store.MessageLogRow{
				UserID:        sender.UserID,
				MessageType:   "sms",
				Recipient:     rcpt.MobileNo,
				RecipientName: merged["parent_name"],
				Content:       rendered.Filled,
			}

			sid, err := d.SMS.Send(ctx, rcpt.MobileNo, rendered.Filled)
			if err != nil {
				logx.L().Errorw("sms_send_failed", "recipient", rcpt.MobileNo, "template_id", tmpl.ID, "error", err)
				metrics.MessagesFailedTotal.WithLabelValues("sms").Inc()
				res.Failed = append(res.Failed, rcpt.MobileNo)
			} else {
				metrics.MessagesSentTotal.WithLabelValues("sms").Inc()
				entry.Status = true
				entry.SID = sql.NullString{String: sid, Valid: true}
				res.SuccessCount++
			}
			entries = append(entries, entry)
		}
	}

	if err := d.Logs.SaveMessageLogs(ctx, entries); err != nil {
		logx.L().Errorw("message_log_commit_failed", "entries", len(entries), "error", err)
		return nil, fmt.Errorf("persist delivery log: %w", err)
	}
	return res, nil
}
