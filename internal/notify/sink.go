package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/ariefcatur/go-fresh-orders/internal/config"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
)

var ErrNoRecipient = errors.New("notify: customer has no email address")

type Sink interface {
	Send(ctx context.Context, msg Message) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSink delivers plain-text mail.
type SMTPSink struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

func NewSMTPSink(cfg config.SMTPConfig) *SMTPSink {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSink{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:     cfg.From,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSink) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.from, msg.To, msg.Subject, msg.Body)
	return s.sendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(raw))
}

// LogSink writes notifications to the log. Used when no SMTP host is configured.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(ctx context.Context, msg Message) error {
	ctx = s.log.WithFields(ctx, map[string]any{
		"order_id": msg.OrderID,
		"to":       msg.To,
		"subject":  msg.Subject,
	})
	s.log.Info(ctx, "notify.sent")
	return nil
}
