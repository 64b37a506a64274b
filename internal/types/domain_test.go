package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-03-10 ")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.March, Day: 10}, d)
	assert.Equal(t, "2024-03-10", d.String())

	_, err = ParseDate("10/03/2024")
	assert.Error(t, err)
}

func TestNewDate_UsesTimeLocation(t *testing.T) {
	ist := time.FixedZone("IST", 330*60)
	// 20:00 UTC on the 9th is already the 10th in IST.
	ts := time.Date(2024, time.March, 9, 20, 0, 0, 0, time.UTC).In(ist)
	assert.Equal(t, "2024-03-10", NewDate(ts).String())
}

func TestParseMonthDay(t *testing.T) {
	tests := []struct {
		in   string
		want MonthDay
		ok   bool
	}{
		{"1990-03-10", MonthDay{time.March, 10}, true},
		{"12-25", MonthDay{time.December, 25}, true},
		{"", MonthDay{}, false},
		{"March 10", MonthDay{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonthDay(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonthDay_IsZero(t *testing.T) {
	assert.True(t, MonthDay{}.IsZero())
	assert.False(t, MonthDay{Month: time.January, Day: 1}.IsZero())
	assert.Equal(t, "01-01", MonthDay{Month: time.January, Day: 1}.String())
}

func TestRosterEntry_HasEmail(t *testing.T) {
	assert.True(t, RosterEntry{Email: "jane@x.com"}.HasEmail())
	assert.False(t, RosterEntry{Email: "   "}.HasEmail())
	assert.False(t, RosterEntry{}.HasEmail())
}

func TestDispatchReport_Merge(t *testing.T) {
	r := DispatchReport{Sent: []string{"a@x.com"}}
	r.Merge(DispatchReport{
		Sent:    []string{"b@x.com"},
		Skipped: []string{"c@x.com"},
		Failed:  []FailedRecipient{{Email: "d@x.com", ErrorSummary: "boom"}},
	})
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, r.Sent)
	assert.Equal(t, 4, r.Total())
}

func TestOccasionKeys(t *testing.T) {
	assert.Equal(t, "festival-Diwali", FestivalKey("Diwali"))
	assert.Equal(t, "custom-42", CustomKey("42"))
}
