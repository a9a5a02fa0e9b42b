// Package calendar queries Google Calendar free/busy data and creates
// events. Slot analysis is a pure function over busy intervals so the
// scan logic stays testable without the API.
package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harunnryd/kakari/internal/config"
	kerrors "github.com/harunnryd/kakari/internal/errors"
)

// DefaultEventDuration is the fallback length in minutes when an event
// record carries no duration.
const DefaultEventDuration = 30

const slotStep = 30 * time.Minute

// Interval is one busy span on somebody's calendar.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a continuous stretch of free time within one day.
type Slot struct {
	Start    string // HH:MM
	End      string // HH:MM
	Duration string // e.g. 1時間30分
}

// DayAvailability lists the free slots of one day.
type DayAvailability struct {
	Date      string // e.g. 5月12日
	DayOfWeek string // kanji weekday
	FullDate  string // yyyy/MM/dd
	Slots     []Slot
}

// Event is a calendar event to create.
type Event struct {
	Title      string
	Start      time.Time
	Duration   time.Duration
	GuestEmail string
}

type Client struct {
	svc *gcal.Service
	cfg config.CalendarConfig
}

func New(ctx context.Context, cfg config.CalendarConfig) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(gcal.CalendarScope))

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, kerrors.Wrap(err, "create calendar service")
	}
	return &Client{svc: svc, cfg: cfg}, nil
}

// BusyIntervals queries free/busy over [from, to) and returns the
// union of busy spans. Calendars defaults to the configured IDs when
// the caller names none.
func (c *Client) BusyIntervals(ctx context.Context, calendars []string, from, to time.Time) ([]Interval, error) {
	if len(calendars) == 0 {
		calendars = c.cfg.CalendarIDs
	}
	if len(calendars) == 0 {
		return nil, kerrors.Configuration("calendar.calendar_ids is empty")
	}
	items := make([]*gcal.FreeBusyRequestItem, 0, len(calendars))
	for _, id := range calendars {
		items = append(items, &gcal.FreeBusyRequestItem{Id: id})
	}

	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   items,
	}).Context(ctx).Do()
	if err != nil {
		return nil, kerrors.Wrap(err, "freebusy query")
	}

	var busy []Interval
	for _, cal := range resp.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				continue
			}
			busy = append(busy, Interval{Start: start, End: end})
		}
	}
	return busy, nil
}

// CreateEvent inserts an event into the organizer's calendar and sends
// invites to the guest, if any. Returns the event ID and its URL.
func (c *Client) CreateEvent(ctx context.Context, ev Event) (string, string, error) {
	if ev.Duration <= 0 {
		ev.Duration = DefaultEventDuration * time.Minute
	}
	end := ev.Start.Add(ev.Duration)

	entry := &gcal.Event{
		Summary:     ev.Title,
		Description: "Slackボットから自動作成された予定\n作成日時: " + time.Now().Format("2006/01/02 15:04:05"),
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	if ev.GuestEmail != "" {
		entry.Attendees = []*gcal.EventAttendee{{Email: ev.GuestEmail}}
	}

	call := c.svc.Events.Insert(c.cfg.OrganizerEmail, entry).Context(ctx)
	if ev.GuestEmail != "" {
		call = call.SendUpdates("all")
	}
	created, err := call.Do()
	if err != nil {
		return "", "", kerrors.Wrap(err, "insert calendar event")
	}
	return created.Id, created.HtmlLink, nil
}

var kanjiWeekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// AnalyzeAvailability scans busy intervals into per-day free slots,
// checking 30-minute increments between startTime and endTime (HH:MM)
// for each of days starting at baseDate. Adjacent free increments merge
// into one slot.
func AnalyzeAvailability(busy []Interval, days int, startTime, endTime string, baseDate time.Time) ([]DayAvailability, error) {
	startHour, startMinute, err := parseClock(startTime)
	if err != nil {
		return nil, err
	}
	endHour, endMinute, err := parseClock(endTime)
	if err != nil {
		return nil, err
	}

	base := time.Date(baseDate.Year(), baseDate.Month(), baseDate.Day(), 0, 0, 0, 0, baseDate.Location())

	out := make([]DayAvailability, 0, days)
	for d := 0; d < days; d++ {
		day := base.AddDate(0, 0, d)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), startHour, startMinute, 0, 0, day.Location())
		dayEnd := time.Date(day.Year(), day.Month(), day.Day(), endHour, endMinute, 0, 0, day.Location())

		var slots []Slot
		var open *Slot
		for cur := dayStart; cur.Before(dayEnd); cur = cur.Add(slotStep) {
			next := cur.Add(slotStep)
			if overlapsAny(busy, cur, next) {
				if open != nil {
					slots = append(slots, *open)
					open = nil
				}
				continue
			}
			if open == nil {
				open = &Slot{Start: clock(cur), End: clock(next), Duration: "30分"}
			} else {
				open.End = clock(next)
				open.Duration = formatDuration(next.Sub(mustClockTime(day, open.Start)))
			}
		}
		if open != nil {
			slots = append(slots, *open)
		}

		out = append(out, DayAvailability{
			Date:      fmt.Sprintf("%d月%d日", day.Month(), day.Day()),
			DayOfWeek: kanjiWeekdays[day.Weekday()],
			FullDate:  day.Format("2006/01/02"),
			Slots:     slots,
		})
	}
	return out, nil
}

func overlapsAny(busy []Interval, start, end time.Time) bool {
	for _, b := range busy {
		if start.Before(b.End) && end.After(b.Start) {
			return true
		}
	}
	return false
}

func parseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, kerrors.InvalidModelOutput("時間の形式が正しくありません: " + s)
	}
	return hour, minute, nil
}

func clock(t time.Time) string {
	return t.Format("15:04")
}

func mustClockTime(day time.Time, hhmm string) time.Time {
	h, m, _ := parseClock(hhmm)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

func formatDuration(d time.Duration) string {
	total := int(d.Minutes())
	hours := total / 60
	minutes := total % 60
	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%d時間%d分", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%d時間", hours)
	default:
		return fmt.Sprintf("%d分", minutes)
	}
}
