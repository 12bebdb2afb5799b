package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// Mailer sends a single plain-text email.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTPConfig describes the outbound mail relay and the fixed envelope.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
	// InsecureSkipVerify disables certificate checks for local relays.
	InsecureSkipVerify bool
}

// SMTPMailer delivers mail through gomail.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("smtp from and to addresses are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host}
	}
	return &SMTPMailer{cfg: cfg, dialer: dialer}, nil
}

// Send dials the relay and delivers one message. gomail has no context
// support, so the deadline is enforced around the call.
func (m *SMTPMailer) Send(ctx context.Context, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send mail: %w", ctx.Err())
	}
}

// NopMailer discards messages. It stands in when no relay is configured.
type NopMailer struct{}

func (NopMailer) Send(context.Context, string, string) error { return nil }
