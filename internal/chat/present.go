package chat

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

// DayGroup is a run of consecutive messages sent on one local calendar day.
type DayGroup struct {
	Day      time.Time
	Messages []models.MessageWithSender
}

// GroupByDay splits msgs, in their given order, into runs sharing a calendar
// day in loc. Each group's Day is local midnight of that day.
func GroupByDay(msgs []models.MessageWithSender, loc *time.Location) []DayGroup {
	groups := []DayGroup{}
	for _, m := range msgs {
		day := startOfDay(m.CreatedAt, loc)
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{Day: day, Messages: []models.MessageWithSender{m}})
	}
	return groups
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, mo, d := t.In(loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}

// daysBefore reports how many calendar days t lies before now in loc.
func daysBefore(t, now time.Time, loc *time.Location) int {
	a, b := startOfDay(t, loc), startOfDay(now, loc)
	// Dates are compared by calendar fields so DST shifts don't skew the count.
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func DayLabel(day, now time.Time, loc *time.Location) string {
	switch daysBefore(day, now, loc) {
	case 0:
		return "Today"
	case 1:
		return "Yesterday"
	}
	return startOfDay(day, loc).Format("January 2, 2006")
}

func TimeLabel(t, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	switch daysBefore(t, now, loc) {
	case 0:
		return local.Format("3:04 PM")
	case 1:
		return "Yesterday " + local.Format("3:04 PM")
	}
	return local.Format("Jan 2, 2006 3:04 PM")
}

// Initials derives an avatar fallback: the first letters of up to two words
// of the display name, else the first letter of the email, else "?".
func Initials(displayName, email string) string {
	var out []rune
	for _, word := range strings.Fields(displayName) {
		r, _ := utf8.DecodeRuneInString(word)
		out = append(out, unicode.ToUpper(r))
		if len(out) == 2 {
			break
		}
	}
	if len(out) > 0 {
		return string(out)
	}
	if r, _ := utf8.DecodeRuneInString(strings.TrimSpace(email)); r != utf8.RuneError {
		return string(unicode.ToUpper(r))
	}
	return "?"
}

// MessageView is a message with its display-only fields filled in.
type MessageView struct {
	models.MessageWithSender
	TimeLabel string `json:"time_label"`
}

// DayView is the wire shape of a DayGroup.
type DayView struct {
	Day      string        `json:"day"`
	Label    string        `json:"label"`
	Messages []MessageView `json:"messages"`
}

// BuildDayViews groups msgs by day and labels each group and message
// relative to now.
func BuildDayViews(msgs []models.MessageWithSender, now time.Time, loc *time.Location) []DayView {
	groups := GroupByDay(msgs, loc)
	views := make([]DayView, 0, len(groups))
	for _, g := range groups {
		v := DayView{
			Day:      g.Day.Format("2006-01-02"),
			Label:    DayLabel(g.Day, now, loc),
			Messages: make([]MessageView, 0, len(g.Messages)),
		}
		for _, m := range g.Messages {
			m.Sender.Initials = Initials(m.Sender.DisplayName, m.Sender.Email)
			v.Messages = append(v.Messages, MessageView{
				MessageWithSender: m,
				TimeLabel:         TimeLabel(m.CreatedAt, now, loc),
			})
		}
		views = append(views, v)
	}
	return views
}
