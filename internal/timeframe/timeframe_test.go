package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitetrack/internal/timeframe"
)

func TestParse(t *testing.T) {
	t.Run("empty values give an open range", func(t *testing.T) {
		r, err := timeframe.Parse("", "", nil)
		require.NoError(t, err)
		assert.Nil(t, r.From)
		assert.Nil(t, r.To)
	})

	t.Run("date-only end covers the whole day", func(t *testing.T) {
		r, err := timeframe.Parse("2024-07-01", "2024-07-02", time.UTC)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), *r.From)
		assert.Equal(t, time.Date(2024, 7, 2, 23, 59, 59, 999999999, time.UTC), *r.To)
	})

	t.Run("rfc3339 bounds are kept exactly, in UTC", func(t *testing.T) {
		r, err := timeframe.Parse("2024-07-01T10:00:00Z", "2024-07-01T13:00:00+02:00", nil)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC), *r.From)
		assert.Equal(t, time.Date(2024, 7, 1, 11, 0, 0, 0, time.UTC), *r.To)
		assert.Equal(t, time.UTC, r.To.Location())
	})

	t.Run("dates follow the supplied location", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		r, err := timeframe.Parse("2024-07-01", "", loc)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 6, 30, 22, 0, 0, 0, time.UTC), *r.From)
	})

	t.Run("rejects garbage and inverted ranges", func(t *testing.T) {
		_, err := timeframe.Parse("yesterday", "", nil)
		assert.Error(t, err)

		_, err = timeframe.Parse("2024-07-02", "2024-07-01", nil)
		assert.Error(t, err)
	})
}
