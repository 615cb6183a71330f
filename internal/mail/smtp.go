package mail

import (
	"context"
	"errors"

	gomail "gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// DefaultFrom is used when the message carries no From override.
	DefaultFrom string
}

// SMTPMailer delivers mail through a plain SMTP relay. Sends are
// synchronous; the caller decides whether a failure is fatal.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.DefaultFrom == "" {
		return nil, errors.New("default from address is required")
	}

	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.DefaultFrom,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	// gomail has no context support; honor cancellation up front.
	if err := ctx.Err(); err != nil {
		return err
	}

	from := msg.From
	if from == "" {
		from = m.from
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)

	return m.dialer.DialAndSend(gm)
}
