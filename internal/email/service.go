package email

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("smtp is not configured")

type Service interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// dialer is the part of gomail.Dialer the service uses.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	from   string
	dialer dialer
}

// NewSMTPService sends plain text mail through the configured SMTP relay. With no host
// configured every send fails with ErrNotConfigured.
func NewSMTPService(cfg Config) Service {
	if cfg.Host == "" {
		return &smtpService{from: cfg.From}
	}
	return &smtpService{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *smtpService) Send(ctx context.Context, to, subject, body string) error {
	if s.dialer == nil {
		return ErrNotConfigured
	}
	if to == "" {
		return fmt.Errorf("email recipient is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
