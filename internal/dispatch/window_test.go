package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.Local)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("08:30")
	require.NoError(t, err)
	require.Equal(t, 510, m)

	m, err = ParseClock(" 23:59 ")
	require.NoError(t, err)
	require.Equal(t, 1439, m)

	for _, bad := range []string{"", "8", "25:00", "08:60", "ab:cd", "08-30"} {
		_, err := ParseClock(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func TestInWindow_Plain(t *testing.T) {
	start, _ := ParseClock("08:00")
	end, _ := ParseClock("21:00")

	require.True(t, inWindow(at(9, 0), start, end))
	require.True(t, inWindow(at(8, 0), start, end))
	require.False(t, inWindow(at(21, 0), start, end))
	require.False(t, inWindow(at(22, 0), start, end))
	require.False(t, inWindow(at(7, 59), start, end))
}

func TestInWindow_WrapsMidnight(t *testing.T) {
	start, _ := ParseClock("22:00")
	end, _ := ParseClock("06:00")

	require.True(t, inWindow(at(23, 30), start, end))
	require.True(t, inWindow(at(2, 0), start, end))
	require.True(t, inWindow(at(22, 0), start, end))
	require.False(t, inWindow(at(12, 0), start, end))
	require.False(t, inWindow(at(6, 0), start, end))
}

func TestInWindow_EqualBoundsAlwaysOpen(t *testing.T) {
	start, _ := ParseClock("00:00")
	require.True(t, inWindow(at(0, 0), start, start))
	require.True(t, inWindow(at(13, 37), start, start))
}
