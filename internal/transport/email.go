package transport

import (
	"github.com/classnotify/notify-backend/pkg/config"

	mail "gopkg.in/gomail.v2"
)

// Mailer sends HTML email over SMTP. Used by the email worker, not by the
// api request path.
type Mailer struct {
	cfg    config.SMTPConfig
	dialer *mail.Dialer
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

func (m *Mailer) Send(to, subject, htmlBody string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	return m.dialer.DialAndSend(msg)
}
