package notify

import (
	"bytes"
	"context"
	"fmt"

	"testflow_backend/config"

	"github.com/wneessen/go-mail"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          string
	Subject     string
	Body        string
	HTML        bool
	Attachments []Attachment
}

// Transport delivers one message. Implementations own their timeouts.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPTransport struct {
	cfg config.SMTPConfig
}

func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(t.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	if msg.HTML {
		m.SetBodyString(mail.TypeTextHTML, msg.Body)
	} else {
		m.SetBodyString(mail.TypeTextPlain, msg.Body)
	}
	for _, a := range msg.Attachments {
		var opts []mail.FileOption
		if a.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(a.ContentType)))
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Data), opts...); err != nil {
			return fmt.Errorf("failed to attach %s: %w", a.Filename, err)
		}
	}

	client, err := mail.NewClient(t.cfg.Host, t.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail via %s:%d: %w", t.cfg.Host, t.cfg.Port, err)
	}
	return nil
}

func (t *SMTPTransport) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if t.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(t.cfg.Timeout))
	}
	if t.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}
	return opts
}
