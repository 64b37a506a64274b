package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"greetbot/internal/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures an SESSender.
type SESConfig struct {
	From Identity
	// ConfigSetName is optional; when set, SES event tracking applies.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESSender delivers through AWS SES v2. Messages without an attachment use
// simple content; messages with one are sent as raw MIME.
type SESSender struct {
	api           SESAPI
	from          Identity
	configSetName string
	now           func() time.Time
	logger        *slog.Logger
}

// NewSESSender creates an SESSender from an AWS config.
func NewSESSender(awsCfg aws.Config, cfg SESConfig) *SESSender {
	return NewSESSenderWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESSenderWithAPI creates an SESSender over a pre-configured SESAPI.
func NewSESSenderWithAPI(api SESAPI, cfg SESConfig) *SESSender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SESSender{
		api:           api,
		from:          cfg.From,
		configSetName: cfg.ConfigSetName,
		now:           time.Now,
		logger:        logger,
	}
}

// Send implements Sender.
//
// Error mapping:
//   - MessageRejected → ErrCodeSendRejected
//   - TooManyRequestsException → ErrCodeUpstreamRateLimited
//   - SendingPausedException → ErrCodeUpstreamUnavailable
//   - Other → ErrCodeSendFailed
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.String()),
		Destination: &sestypes.Destination{
			ToAddresses: []string{msg.To},
		},
	}

	if msg.Attachment != nil {
		raw, err := BuildMIME(s.from, msg, s.now())
		if err != nil {
			return types.NewAppError(types.ErrCodeSendFailed, "building raw message", err)
		}
		input.Content = &sestypes.EmailContent{Raw: &sestypes.RawMessage{Data: raw}}
	} else {
		input.Content = &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &sestypes.Body{
					Text: &sestypes.Content{
						Data:    aws.String(msg.Body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		}
	}

	if s.configSetName != "" {
		input.ConfigurationSetName = aws.String(s.configSetName)
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return mapSESError(err)
	}

	if out != nil && out.MessageId != nil {
		s.logger.DebugContext(ctx, "ses accepted message",
			"recipient", RedactEmail(msg.To),
			"message_id", *out.MessageId,
		)
	}
	return nil
}

// mapSESError translates AWS SES errors into AppErrors.
func mapSESError(err error) error {
	var msgRejected *sestypes.MessageRejected
	if errors.As(err, &msgRejected) {
		return types.NewAppError(types.ErrCodeSendRejected, fmt.Sprintf("SES rejected message: %v", err), err)
	}

	var tooManyReqs *sestypes.TooManyRequestsException
	if errors.As(err, &tooManyReqs) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("SES rate limit exceeded: %v", err), err)
	}

	var sendingPaused *sestypes.SendingPausedException
	if errors.As(err, &sendingPaused) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("SES account sending paused: %v", err), err)
	}

	return types.NewAppError(types.ErrCodeSendFailed, fmt.Sprintf("SES error: %v", err), err)
}

var (
	_ Sender = (*SESSender)(nil)
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*RetryingSender)(nil)
	_ Sender = (*BreakerSender)(nil)
)
