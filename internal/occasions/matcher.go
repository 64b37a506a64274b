// Package occasions decides which notifications are due on a given day. It is
// pure: the same inputs always produce the same candidates in the same order,
// and nothing here performs I/O.
package occasions

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"greetbot/internal/types"
)

//go:embed templates/*.txt
var templateFS embed.FS

// namePlaceholder is substituted in custom message templates.
const namePlaceholder = "{name}"

// DefaultSignature closes every built-in greeting unless overridden.
const DefaultSignature = "The Team"

// bodyData is passed into the body templates.
type bodyData struct {
	FullName  string
	FirstName string
	Years     int
	Suffix    string
	Festival  string
	Signature string
}

// Matcher renders candidates for each occasion kind.
type Matcher struct {
	bodies    map[types.OccasionKind]*template.Template
	signature string
}

// NewMatcher parses the embedded body templates.
func NewMatcher(signature string) (*Matcher, error) {
	if signature == "" {
		signature = DefaultSignature
	}
	m := &Matcher{
		bodies:    make(map[types.OccasionKind]*template.Template),
		signature: signature,
	}
	for _, kind := range []types.OccasionKind{types.OccasionBirthday, types.OccasionAnniversary, types.OccasionFestival} {
		name := string(kind)
		content, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", name))
		if err != nil {
			return nil, fmt.Errorf("occasions: failed to read %s.txt: %w", name, err)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("occasions: failed to parse %s.txt: %w", name, err)
		}
		m.bodies[kind] = tmpl
	}
	return m, nil
}

// FirstName is the part of fullName before the first space, or the whole
// (trimmed) name when there is no space.
func FirstName(fullName string) string {
	name := strings.TrimSpace(fullName)
	first, _, _ := strings.Cut(name, " ")
	return first
}

// OrdinalSuffix returns the English ordinal suffix for an anniversary
// count: 1st, 2nd, 3rd, 4th, 11th, 12th, 13th, 21st, 112th.
func OrdinalSuffix(years int) string {
	if n := years % 100; n >= 11 && n <= 13 {
		return "th"
	}
	switch years % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// Match returns every candidate due today, in processing order: birthdays,
// anniversaries, festivals, custom messages.
func (m *Matcher) Match(today types.Date, roster []types.RosterEntry, festivals []types.FestivalEntry, customs []types.CustomMessage) ([]types.Candidate, error) {
	var all []types.Candidate
	for _, kind := range types.AllOccasionKinds {
		c, err := m.MatchKind(kind, today, roster, festivals, customs)
		if err != nil {
			return nil, err
		}
		all = append(all, c...)
	}
	return all, nil
}

// MatchKind returns the candidates of one kind. festivals and customs are
// ignored by the kinds that do not use them.
func (m *Matcher) MatchKind(kind types.OccasionKind, today types.Date, roster []types.RosterEntry, festivals []types.FestivalEntry, customs []types.CustomMessage) ([]types.Candidate, error) {
	switch kind {
	case types.OccasionBirthday:
		return m.MatchBirthdays(today, roster)
	case types.OccasionAnniversary:
		return m.MatchAnniversaries(today, roster)
	case types.OccasionFestival:
		return m.MatchFestivals(today, roster, festivals)
	case types.OccasionCustom:
		return MatchCustom(today, roster, customs), nil
	default:
		return nil, fmt.Errorf("occasions: unknown kind %q", kind)
	}
}

// MatchBirthdays emits a "bday" candidate for every entry whose birthday
// month and day equal today's. A 29 February birthday only matches in leap
// years.
func (m *Matcher) MatchBirthdays(today types.Date, roster []types.RosterEntry) ([]types.Candidate, error) {
	var out []types.Candidate
	for _, r := range recipients(roster) {
		if r.BirthDate.IsZero() || r.BirthDate != today.MonthDay() {
			continue
		}
		first := FirstName(r.FullName)
		body, err := m.render(types.OccasionBirthday, bodyData{FullName: r.FullName, FirstName: first})
		if err != nil {
			return nil, err
		}
		out = append(out, types.Candidate{
			RecipientEmail:     r.Email,
			RecipientFirstName: first,
			OccasionKind:       types.OccasionBirthday,
			OccasionKey:        types.KeyBirthday,
			Subject:            fmt.Sprintf("Happy Birthday, %s!", first),
			Body:               body,
		})
	}
	return out, nil
}

// MatchAnniversaries emits a "workanni" candidate for every entry whose hire
// month and day equal today's and who has completed at least one year.
func (m *Matcher) MatchAnniversaries(today types.Date, roster []types.RosterEntry) ([]types.Candidate, error) {
	var out []types.Candidate
	for _, r := range recipients(roster) {
		if r.HireDate.IsZero() || r.HireDate.MonthDay() != today.MonthDay() {
			continue
		}
		years := today.Year - r.HireDate.Year
		if years < 1 {
			continue
		}
		first := FirstName(r.FullName)
		body, err := m.render(types.OccasionAnniversary, bodyData{
			FullName:  r.FullName,
			FirstName: first,
			Years:     years,
			Suffix:    OrdinalSuffix(years),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, types.Candidate{
			RecipientEmail:     r.Email,
			RecipientFirstName: first,
			OccasionKind:       types.OccasionAnniversary,
			OccasionKey:        types.KeyAnniversary,
			Subject:            fmt.Sprintf("Happy Work Anniversary, %s!", first),
			Body:               body,
		})
	}
	return out, nil
}

// MatchFestivals emits one candidate per recipient for every festival dated
// today.
func (m *Matcher) MatchFestivals(today types.Date, roster []types.RosterEntry, festivals []types.FestivalEntry) ([]types.Candidate, error) {
	var out []types.Candidate
	seen := make(map[string]bool)
	for _, f := range festivals {
		if f.Date != today {
			continue
		}
		key := types.FestivalKey(f.Name)
		if seen[key] {
			continue
		}
		seen[key] = true

		for _, r := range recipients(roster) {
			first := FirstName(r.FullName)
			body, err := m.render(types.OccasionFestival, bodyData{FullName: r.FullName, FirstName: first, Festival: f.Name})
			if err != nil {
				return nil, err
			}
			out = append(out, types.Candidate{
				RecipientEmail:     r.Email,
				RecipientFirstName: first,
				OccasionKind:       types.OccasionFestival,
				OccasionKey:        key,
				Subject:            fmt.Sprintf("Happy %s, %s!", f.Name, first),
				Body:               body,
			})
		}
	}
	return out, nil
}

// MatchCustom emits one candidate per recipient for every custom message
// scheduled today, with every {name} replaced by the recipient's first name.
func MatchCustom(today types.Date, roster []types.RosterEntry, customs []types.CustomMessage) []types.Candidate {
	var out []types.Candidate
	seen := make(map[string]bool)
	for _, msg := range customs {
		if msg.ID == "" || msg.SendDate != today {
			continue
		}
		key := types.CustomKey(msg.ID)
		if seen[key] {
			continue
		}
		seen[key] = true

		for _, r := range recipients(roster) {
			first := FirstName(r.FullName)
			out = append(out, types.Candidate{
				RecipientEmail:     r.Email,
				RecipientFirstName: first,
				OccasionKind:       types.OccasionCustom,
				OccasionKey:        key,
				Subject:            strings.ReplaceAll(msg.SubjectTemplate, namePlaceholder, first),
				Body:               strings.ReplaceAll(msg.BodyTemplate, namePlaceholder, first),
			})
		}
	}
	return out
}

func (m *Matcher) render(kind types.OccasionKind, data bodyData) (string, error) {
	tmpl, ok := m.bodies[kind]
	if !ok {
		return "", fmt.Errorf("occasions: no template for %q", kind)
	}
	data.Signature = m.signature
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("occasions: failed to render %q: %w", kind, err)
	}
	return buf.String(), nil
}

// recipients drops entries without an email and repeated addresses, trimming
// the address that is kept. The first entry for an address wins.
func recipients(roster []types.RosterEntry) []types.RosterEntry {
	out := make([]types.RosterEntry, 0, len(roster))
	seen := make(map[string]bool, len(roster))
	for _, r := range roster {
		if !r.HasEmail() {
			continue
		}
		r.Email = strings.TrimSpace(r.Email)
		id := strings.ToLower(r.Email)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}
