package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"

	"greetbot/internal/types"
)

// defaultDialTimeout bounds connection setup and each SMTP command.
const defaultDialTimeout = 30 * time.Second

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     Identity
}

// SMTPSender delivers through an SMTP relay. The connection is upgraded with
// STARTTLS when the server offers it and authenticated with PLAIN when a
// username is set.
type SMTPSender struct {
	cfg       SMTPConfig
	tlsConfig *tls.Config
	now       func() time.Time
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		now:       time.Now,
	}
}

func (s *SMTPSender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(defaultDialTimeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(s.tlsConfig),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

// Send implements Sender with one SMTP session per call.
//
// Error mapping:
//   - connection failures and temporary (4xx) replies → ErrCodeUpstreamUnavailable
//   - permanent (5xx) replies to the transaction → ErrCodeSendRejected
//   - other (composition, STARTTLS, AUTH) → ErrCodeSendFailed
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := newMsg(s.cfg.From, msg, s.now())
	if err != nil {
		return types.NewAppError(types.ErrCodeSendFailed, "building message", err)
	}

	c, err := s.client()
	if err != nil {
		return types.NewAppError(types.ErrCodeSendFailed, "configuring smtp client", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return smtpError(addr, err)
	}
	return nil
}

func smtpError(addr string, err error) error {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		if sendErr.IsTemp() {
			return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("smtp %s", addr), err)
		}
		return types.NewAppError(types.ErrCodeSendRejected, fmt.Sprintf("smtp %s", addr), err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("connecting to %s", addr), err)
	}
	return types.NewAppError(types.ErrCodeSendFailed, fmt.Sprintf("smtp %s", addr), err)
}
