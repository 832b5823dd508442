package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds a whole delivery when the context has no deadline.
	Timeout time.Duration
}

// SMTPNotifier delivers HTML email through an SMTP relay, upgrading to TLS
// with STARTTLS when the server offers it.
type SMTPNotifier struct {
	cfg    SMTPConfig
	dialer net.Dialer
	now    func() time.Time
}

var _ Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier validates cfg and returns a notifier.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp: sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPNotifier{cfg: cfg, now: time.Now}, nil
}

type templateData struct {
	Email string
	Name  string
	Code  string
}

func (n *SMTPNotifier) SendVerification(ctx context.Context, email, code string) error {
	return n.sendTemplate(ctx, email, SubjectVerification, "verification.html", templateData{Email: email, Code: code})
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, email, code string) error {
	return n.sendTemplate(ctx, email, SubjectReset, "reset.html", templateData{Email: email, Code: code})
}

func (n *SMTPNotifier) SendWelcome(ctx context.Context, email, name string) error {
	return n.sendTemplate(ctx, email, SubjectWelcome, "welcome.html", templateData{Email: email, Name: name})
}

func (n *SMTPNotifier) sendTemplate(ctx context.Context, to, subject, name string, data templateData) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	msg := buildMessage(n.cfg.From, to, subject, body.Bytes(), n.now())
	if err := n.deliver(ctx, to, msg); err != nil {
		return fmt.Errorf("smtp delivery to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject string, htmlBody []byte, date time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.Write(htmlBody)
	return b.Bytes()
}

func (n *SMTPNotifier) deliver(ctx context.Context, to string, msg []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	conn, err := n.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if n.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(n.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
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
