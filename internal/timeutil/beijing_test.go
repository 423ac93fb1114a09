package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDate_UsesBeijingZone(t *testing.T) {
	// 2024-01-01 23:30 UTC is already 2024-01-02 in Beijing.
	utc := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-02", FormatDate(utc))
}

func TestParseDate_RoundTrip(t *testing.T) {
	parsed, err := ParseDate("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", FormatDate(parsed))
	assert.Equal(t, Beijing, parsed.Location())
}

func TestIsMarketClosedNow_DefaultBoundary(t *testing.T) {
	// This test only exercises the parse/compare path, not a frozen clock,
	// so it asserts the function runs without panicking and returns a bool
	// consistent with the actual current time.
	closed := IsMarketClosedNow("15:05")
	now := NowBeijing()
	boundary := time.Date(now.Year(), now.Month(), now.Day(), 15, 5, 0, 0, Beijing)
	assert.Equal(t, !now.Before(boundary), closed)
}

func TestIsMarketClosedNow_InvalidFallsBackToDefault(t *testing.T) {
	closedDefault := IsMarketClosedNow("15:05")
	closedInvalid := IsMarketClosedNow("not-a-time")
	assert.Equal(t, closedDefault, closedInvalid)
}
