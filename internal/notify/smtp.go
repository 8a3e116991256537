package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/deixis/snapraid-runner/internal/config"
)

// DefaultTimeout bounds a delivery when ctx carries no deadline.
const DefaultTimeout = time.Minute

// SMTPNotifier mails the transcript through an SMTP relay.
type SMTPNotifier struct {
	SMTP     config.SMTPConfig
	From     string
	To       string
	Subject  string
	MaxBytes int // transcript cap; 0 disables truncation

	// TLSConfig overrides the client TLS settings. Nil uses the system
	// roots with ServerName set to SMTP.Host.
	TLSConfig *tls.Config
}

// NewSMTPNotifier builds a notifier from the email and smtp sections.
func NewSMTPNotifier(cfg *config.Config) *SMTPNotifier {
	return &SMTPNotifier{
		SMTP:     cfg.SMTP,
		From:     cfg.Email.From,
		To:       cfg.Email.To,
		Subject:  cfg.Email.Subject,
		MaxBytes: cfg.EmailMaxBytes(),
	}
}

// Notify composes and delivers one message.
func (n *SMTPNotifier) Notify(ctx context.Context, success bool, transcript string) error {
	if n.SMTP.Host == "" {
		return ErrHostNotSet
	}
	msg := Compose(n.Subject, success, transcript, n.MaxBytes)
	data, err := n.encode(msg)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	return n.send(ctx, data)
}

func (n *SMTPNotifier) addr() string {
	port := n.SMTP.Port
	if port == 0 {
		port = 25
		if n.SMTP.SSL {
			port = 465
		}
	}
	return net.JoinHostPort(n.SMTP.Host, strconv.Itoa(port))
}

func (n *SMTPNotifier) tlsConfig() *tls.Config {
	if n.TLSConfig != nil {
		return n.TLSConfig
	}
	return &tls.Config{ServerName: n.SMTP.Host, MinVersion: tls.VersionTLS12}
}

func (n *SMTPNotifier) send(ctx context.Context, data []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", n.addr())
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", n.addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if n.SMTP.SSL {
		tc := tls.Client(conn, n.tlsConfig())
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("tls handshake with %s: %w", n.addr(), err)
		}
		conn = tc
	}

	c, err := smtp.NewClient(conn, n.SMTP.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if n.SMTP.TLS && !n.SMTP.SSL {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("%s does not support STARTTLS", n.addr())
		}
		if err := c.StartTLS(n.tlsConfig()); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if n.SMTP.User != "" {
		if err := c.Auth(smtp.PlainAuth("", n.SMTP.User, n.SMTP.Password, n.SMTP.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(n.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(n.To); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	return c.Quit()
}

// encode renders msg as a quoted-printable UTF-8 text/plain message.
func (n *SMTPNotifier) encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", n.From)
	header("To", n.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", time.Now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	return buf.Bytes(), nil
}
