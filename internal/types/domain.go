// Package types holds the shared domain model of the greeting dispatcher:
// roster and calendar rows, send-log entries, notification candidates and the
// per-occasion dispatch report.
package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used in every table column.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time-of-day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the calendar date of t in t's own location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD cell. Surrounding whitespace is ignored.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return NewDate(t), nil
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// MonthDay drops the year.
func (d Date) MonthDay() MonthDay {
	return MonthDay{Month: d.Month, Day: d.Day}
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MonthDay is a recurring yearly date such as a birthday.
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay accepts either a full YYYY-MM-DD date (the year is dropped)
// or a bare MM-DD value.
func ParseMonthDay(s string) (MonthDay, error) {
	s = strings.TrimSpace(s)
	if d, err := ParseDate(s); err == nil {
		return d.MonthDay(), nil
	}
	t, err := time.Parse("01-02", s)
	if err != nil {
		return MonthDay{}, fmt.Errorf("invalid month-day %q: %w", s, err)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

// IsZero reports whether md is unset.
func (md MonthDay) IsZero() bool {
	return md.Month == 0 && md.Day == 0
}

// String formats md as MM-DD.
func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// RosterEntry is one employee row. Email is the identity; entries without an
// email are never matched.
type RosterEntry struct {
	ID        string   `json:"id" yaml:"id"`
	FullName  string   `json:"full_name" yaml:"full_name"`
	Email     string   `json:"email" yaml:"email"`
	BirthDate MonthDay `json:"-" yaml:"-"`
	HireDate  Date     `json:"-" yaml:"-"`
}

// HasEmail reports whether the entry can receive mail at all.
func (r RosterEntry) HasEmail() bool {
	return strings.TrimSpace(r.Email) != ""
}

// FestivalEntry is one dated festival occurrence. A recurring festival needs
// one row per year it should fire.
type FestivalEntry struct {
	Name string
	Date Date
}

// CustomMessage is an ad-hoc campaign. Both templates may contain the {name}
// placeholder.
type CustomMessage struct {
	ID              string
	SendDate        Date
	SubjectTemplate string
	BodyTemplate    string
}

// SendStatusYes is the only status this system ever writes.
const SendStatusYes = "yes"

// SendLogEntry is one row of the append-only send log.
type SendLogEntry struct {
	ID              string
	OccasionKey     string
	Date            Date
	RecipientEmail  string
	Status          string
	SentAtLocalTime string
}

// Candidate is a fully formed notification matched for today and not yet sent.
type Candidate struct {
	RecipientEmail     string       `json:"recipient_email" yaml:"recipient_email"`
	RecipientFirstName string       `json:"recipient_first_name" yaml:"recipient_first_name"`
	OccasionKind       OccasionKind `json:"occasion_kind" yaml:"occasion_kind"`
	OccasionKey        string       `json:"occasion_key" yaml:"occasion_key"`
	Subject            string       `json:"subject" yaml:"subject"`
	Body               string       `json:"body" yaml:"body"`
}

// FailedRecipient pairs a recipient with a short description of why delivery
// failed.
type FailedRecipient struct {
	Email        string `json:"email" yaml:"email"`
	OccasionKey  string `json:"occasion_key" yaml:"occasion_key"`
	ErrorSummary string `json:"error" yaml:"error"`
}

// DispatchReport is the outcome of dispatching one set of candidates.
type DispatchReport struct {
	Sent    []string          `json:"sent" yaml:"sent"`
	Skipped []string          `json:"skipped" yaml:"skipped"`
	Failed  []FailedRecipient `json:"failed" yaml:"failed"`
}

// Merge appends other's outcomes to r.
func (r *DispatchReport) Merge(other DispatchReport) {
	r.Sent = append(r.Sent, other.Sent...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Failed = append(r.Failed, other.Failed...)
}

// Total is the number of candidates accounted for in the report.
func (r DispatchReport) Total() int {
	return len(r.Sent) + len(r.Skipped) + len(r.Failed)
}
