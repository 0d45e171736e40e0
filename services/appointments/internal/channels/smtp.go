package channels

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPBackend speaks plain SMTP with optional STARTTLS, or implicit TLS when UseSSL is set.
type SMTPBackend struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	useSSL   bool
	timeout  time.Duration
}

func NewSMTPBackend(cfg EmailSettings) *SMTPBackend {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTPBackend{
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		useTLS:   cfg.UseTLS,
		useSSL:   cfg.UseSSL,
		timeout:  timeout,
	}
}

func (b *SMTPBackend) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(b.host, strconv.Itoa(b.port))
	dialer := &net.Dialer{Timeout: b.timeout}

	var conn net.Conn
	var err error
	if b.useSSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: b.host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(b.timeout))
	}

	c, err := smtp.NewClient(conn, b.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if b.useTLS && !b.useSSL {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("smtp server does not support STARTTLS")
		}
		if err := c.StartTLS(&tls.Config{ServerName: b.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if b.username != "" && b.password != "" {
		if err := c.Auth(smtp.PlainAuth("", b.username, b.password, b.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(msg.From); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(buildMIME(msg))); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
