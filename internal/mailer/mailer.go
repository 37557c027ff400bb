// Package mailer sends outbound email over SMTP. It supports STARTTLS,
// implicit SSL, and unencrypted connections for local development.
package mailer

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/lumenwerk/gatehouse/internal/config"
)

// Mailer sends plain-text email. The zero implementation used in
// development logs instead of sending.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail through a configured SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// New returns a Mailer for the given config. When no SMTP host is
// configured, a logging no-op mailer is returned so the rest of the
// application doesn't need to care.
func New(cfg config.SMTPConfig) Mailer {
	if cfg.Host == "" {
		slog.Warn("smtp host not configured, outbound mail disabled")
		return &logMailer{}
	}
	return &SMTPMailer{cfg: cfg}
}

// Send delivers a plain-text message using the configured encryption mode.
func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := m.buildMessage(to, subject, body)
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var err error
	switch strings.ToLower(m.cfg.Encryption) {
	case "ssl":
		err = m.sendSSL(addr, to, msg)
	case "none":
		err = m.sendPlain(addr, to, msg)
	default:
		err = m.sendStartTLS(addr, to, msg)
	}
	if err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// buildMessage assembles an RFC 2822 message with encoded headers.
func (m *SMTPMailer) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	from := m.cfg.FromAddress
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.FromAddress)
	}
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func (m *SMTPMailer) auth() smtp.Auth {
	if m.cfg.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
}

func (m *SMTPMailer) sendStartTLS(addr, to string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("server does not support STARTTLS")
	}
	tlsCfg := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	if err := client.StartTLS(tlsCfg); err != nil {
		return err
	}
	return m.transmit(client, to, msg)
}

func (m *SMTPMailer) sendSSL(addr, to string, msg []byte) error {
	tlsCfg := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()
	return m.transmit(client, to, msg)
}

func (m *SMTPMailer) sendPlain(addr, to string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()
	return m.transmit(client, to, msg)
}

func (m *SMTPMailer) transmit(client *smtp.Client, to string, msg []byte) error {
	if auth := m.auth(); auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(m.cfg.FromAddress); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// logMailer logs mail instead of sending it. Used when SMTP is not
// configured.
type logMailer struct{}

func (l *logMailer) Send(to, subject, body string) error {
	slog.Info("mail (not sent, smtp disabled)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}
