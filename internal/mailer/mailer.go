// Package mailer delivers notification emails. Transports (SMTP, SES)
// implement Sender; decorators add retries, circuit breaking and a default
// attachment on top of any Sender.
package mailer

import (
	"context"
	"log/slog"
	"strings"
)

// Attachment is a file attached to a message.
type Attachment struct {
	Name string
	Path string
}

// Message is one outbound plain-text email.
type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

// Sender delivers a single message. One call is one delivery attempt.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Identity is the From header of outgoing mail.
type Identity struct {
	Name    string
	Address string
}

// String renders the identity as a header value.
func (id Identity) String() string {
	if id.Name == "" {
		return id.Address
	}
	return id.Name + " <" + id.Address + ">"
}

// WithDefaultAttachment attaches att to every message that has no attachment
// of its own.
func WithDefaultAttachment(next Sender, att *Attachment) Sender {
	if att == nil || att.Path == "" {
		return next
	}
	return SenderFunc(func(ctx context.Context, msg Message) error {
		if msg.Attachment == nil {
			a := *att
			msg.Attachment = &a
		}
		return next.Send(ctx, msg)
	})
}

// LogSender only logs what would have been sent. Used for dry runs.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "dry run: email not sent",
		"recipient", RedactEmail(msg.To),
		"subject", msg.Subject,
	)
	return nil
}

// RedactEmail masks an address for logging: "john@gmail.com" becomes
// "j***@gmail.com". Strings without an "@" are fully masked.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}
