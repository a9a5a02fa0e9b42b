package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, h, m int) time.Time {
	t.Helper()
	return time.Date(2025, 5, 12, h, m, 0, 0, time.UTC) // Monday
}

func TestAnalyzeAvailabilityFreeDay(t *testing.T) {
	base := day(t, 0, 0)
	out, err := AnalyzeAvailability(nil, 1, "09:00", "18:00", base)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "5月12日", out[0].Date)
	assert.Equal(t, "月", out[0].DayOfWeek)
	assert.Equal(t, "2025/05/12", out[0].FullDate)

	require.Len(t, out[0].Slots, 1)
	assert.Equal(t, Slot{Start: "09:00", End: "18:00", Duration: "9時間"}, out[0].Slots[0])
}

func TestAnalyzeAvailabilitySplitsAroundBusy(t *testing.T) {
	busy := []Interval{
		{Start: day(t, 10, 0), End: day(t, 11, 0)},
		{Start: day(t, 14, 30), End: day(t, 15, 0)},
	}

	out, err := AnalyzeAvailability(busy, 1, "09:00", "18:00", day(t, 0, 0))
	require.NoError(t, err)
	require.Len(t, out, 1)

	require.Len(t, out[0].Slots, 3)
	assert.Equal(t, Slot{Start: "09:00", End: "10:00", Duration: "1時間"}, out[0].Slots[0])
	assert.Equal(t, Slot{Start: "11:00", End: "14:30", Duration: "3時間30分"}, out[0].Slots[1])
	assert.Equal(t, Slot{Start: "15:00", End: "18:00", Duration: "3時間"}, out[0].Slots[2])
}

func TestAnalyzeAvailabilityFullyBusy(t *testing.T) {
	busy := []Interval{{Start: day(t, 8, 0), End: day(t, 19, 0)}}

	out, err := AnalyzeAvailability(busy, 1, "09:00", "18:00", day(t, 0, 0))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Slots)
}

func TestAnalyzeAvailabilityPartialOverlapBlocksSlot(t *testing.T) {
	// A meeting covering only part of a 30-minute increment still
	// blocks that increment.
	busy := []Interval{{Start: day(t, 9, 10), End: day(t, 9, 20)}}

	out, err := AnalyzeAvailability(busy, 1, "09:00", "10:00", day(t, 0, 0))
	require.NoError(t, err)
	require.Len(t, out[0].Slots, 1)
	assert.Equal(t, Slot{Start: "09:30", End: "10:00", Duration: "30分"}, out[0].Slots[0])
}

func TestAnalyzeAvailabilityMultipleDays(t *testing.T) {
	out, err := AnalyzeAvailability(nil, 3, "09:00", "18:00", day(t, 0, 0))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "2025/05/12", out[0].FullDate)
	assert.Equal(t, "2025/05/13", out[1].FullDate)
	assert.Equal(t, "2025/05/14", out[2].FullDate)
	assert.Equal(t, "火", out[1].DayOfWeek)
}

func TestAnalyzeAvailabilityBadClock(t *testing.T) {
	_, err := AnalyzeAvailability(nil, 1, "morning", "18:00", day(t, 0, 0))
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30分", formatDuration(30*time.Minute))
	assert.Equal(t, "1時間", formatDuration(time.Hour))
	assert.Equal(t, "1時間30分", formatDuration(90*time.Minute))
}
