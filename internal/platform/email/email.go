// Package email delivers posts over SMTP, one message per recipient.
package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"promocast/internal/channel/api"
	"promocast/internal/errclass"
	"promocast/internal/target"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	// From is the envelope sender; FromName only decorates the header.
	From     string
	FromName string
	// HTML sends the body as text/html instead of text/plain.
	HTML bool
}

// SendFunc matches smtp.SendMail so tests can capture outgoing mail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sender implements api.Poster.
type Sender struct {
	cfg  Config
	auth smtp.Auth
	send SendFunc
}

func New(cfg Config, send SendFunc) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp host and from address are required")
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	var auth smtp.Auth
	if cfg.User != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &Sender{cfg: cfg, auth: auth, send: send}, nil
}

// Recipient accepts targets whose base field parses as a mailbox address.
func (s *Sender) Recipient(t target.Target) (string, bool) {
	v, ok := target.BaseField(t)
	if !ok {
		return "", false
	}
	addr, err := mail.ParseAddress(v)
	if err != nil {
		return "", false
	}
	return addr.Address, true
}

func (s *Sender) Send(ctx context.Context, to string, msg api.Message) (api.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return api.Delivery{}, err
	}
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	body := s.compose(to, msg)

	// smtp.SendMail has no context; run it aside so cancellation is honoured.
	done := make(chan error, 1)
	go func() { done <- s.send(addr, s.auth, s.cfg.From, []string{to}, body) }()
	select {
	case <-ctx.Done():
		return api.Delivery{}, ctx.Err()
	case err := <-done:
		if err != nil {
			return api.Delivery{}, mapError(err)
		}
	}
	return api.Delivery{PostID: messageID(to)}, nil
}

func (s *Sender) compose(to string, msg api.Message) []byte {
	from := s.cfg.From
	if strings.TrimSpace(s.cfg.FromName) != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}
	subject := msg.Post.Title
	if subject == "" {
		subject, _, _ = strings.Cut(strings.TrimSpace(msg.Post.Body), "\n")
	}
	ctype := "text/plain; charset=UTF-8"
	if s.cfg.HTML {
		ctype = "text/html; charset=UTF-8"
	}
	lines := []string{
		"From: " + sanitizeHeader(from),
		"To: " + sanitizeHeader(to),
		"Subject: " + sanitizeHeader(subject),
		"Date: " + time.Now().Format(time.RFC1123Z),
		"Message-ID: <" + messageID(to) + ">",
		"MIME-Version: 1.0",
		"Content-Type: " + ctype,
		"",
		msg.Text,
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func messageID(to string) string {
	host := "promocast"
	if _, domain, ok := strings.Cut(to, "@"); ok {
		host = domain
	}
	return fmt.Sprintf("%d@%s", time.Now().UnixNano(), host)
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// SMTPError carries a reply code. 4xx replies are transient.
type SMTPError struct {
	Code int
	Msg  string
}

func (e *SMTPError) Error() string     { return fmt.Sprintf("smtp %d: %s", e.Code, e.Msg) }
func (e *SMTPError) ErrorCode() string { return fmt.Sprintf("SMTP_%d", e.Code) }

func mapError(err error) error {
	var pe *textproto.Error
	if !errors.As(err, &pe) {
		return err
	}
	se := &SMTPError{Code: pe.Code, Msg: pe.Msg}
	if pe.Code >= 400 && pe.Code < 500 {
		return errclass.RetryAfter(se, time.Minute)
	}
	return se
}
