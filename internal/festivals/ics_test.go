package festivals

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"greetbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holidaysICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//greetbot//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:diwali-2024@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20241101\r\n" +
	"SUMMARY:Diwali\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:late-utc@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240114T200000Z\r\n" +
	"SUMMARY:Pongal\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:nameless@example.com\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20240301\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParse(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	got, err := Parse(strings.NewReader(holidaysICS), ist)
	require.NoError(t, err)

	assert.Equal(t, []types.FestivalEntry{
		{Name: "Diwali", Date: types.Date{Year: 2024, Month: time.November, Day: 1}},
		// 20:00 UTC is already the next day in IST.
		{Name: "Pongal", Date: types.Date{Year: 2024, Month: time.January, Day: 15}},
	}, got)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(strings.NewReader("BEGIN:VCALENDAR\r\nBROKEN"), time.UTC)
	assert.Error(t, err)
}

func TestICSFile_Festivals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.ics")
	require.NoError(t, os.WriteFile(path, []byte(holidaysICS), 0o600))

	got, err := NewICSFile(path, nil, nil).Festivals(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = NewICSFile(filepath.Join(t.TempDir(), "none.ics"), nil, nil).Festivals(context.Background())
	assert.Error(t, err)
}
