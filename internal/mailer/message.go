package mailer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// newMsg composes msg as a go-mail message: a quoted-printable UTF-8 text
// body, multipart/mixed when an attachment is present.
func newMsg(from Identity, msg Message, now time.Time) (*mail.Msg, error) {
	m := mail.NewMsg()

	var err error
	if from.Name != "" {
		err = m.FromFormat(from.Name, from.Address)
	} else {
		err = m.From(from.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("sender address %q: %w", from.Address, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}

	m.Subject(msg.Subject)
	m.SetDateWithValue(now)
	m.SetMessageIDWithValue(uuid.NewString() + "@" + domainOf(from.Address))
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if msg.Attachment != nil {
		// AttachFile drops unreadable files silently.
		if _, err := os.Stat(msg.Attachment.Path); err != nil {
			return nil, fmt.Errorf("reading attachment %s: %w", msg.Attachment.Name, err)
		}
		name := msg.Attachment.Name
		if name == "" {
			name = filepath.Base(msg.Attachment.Path)
		}
		m.AttachFile(msg.Attachment.Path, mail.WithFileName(name))
	}
	return m, nil
}

// BuildMIME renders msg as an RFC 5322 message for transports that take raw
// bytes.
func BuildMIME(from Identity, msg Message, now time.Time) ([]byte, error) {
	m, err := newMsg(from, msg, now)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("rendering message: %w", err)
	}
	return buf.Bytes(), nil
}

func domainOf(address string) string {
	if _, domain, ok := strings.Cut(address, "@"); ok && domain != "" {
		return domain
	}
	return "localhost"
}
