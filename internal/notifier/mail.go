package notifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mail delivers plain-text alerts through an SMTP relay.
type Mail struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
	send     sendFunc
}

// NewMail builds an SMTP channel. timeout bounds the whole SMTP session,
// dial included; zero means 30s.
func NewMail(host string, port int, username, password, from string, timeout time.Duration) *Mail {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	m := &Mail{host: host, port: port, username: username, password: password, from: from, timeout: timeout}
	m.send = m.sendMail
	return m
}

func (m *Mail) Name() string { return "mail" }

func (m *Mail) Enabled() bool { return m.host != "" }

func (m *Mail) Notify(ctx context.Context, recipients []string, from, subject, body string) error {
	if !m.Enabled() {
		return errors.New("mail not configured")
	}
	if len(recipients) == 0 {
		return errors.New("no mail recipients")
	}
	if from == "" {
		from = m.from
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.username != "" && m.password != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, from, recipients, buildMessage(from, recipients, subject, body))
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail via %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendMail is smtp.SendMail with a dial timeout and a deadline covering the
// whole session.
func (m *Mail) sendMail(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, m.timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(m.timeout)); err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	header := map[string]string{
		"From":         from,
		"To":           strings.Join(to, ","),
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/plain; charset=UTF-8",
	}
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, header[k])
	}
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(msg.String())
}
