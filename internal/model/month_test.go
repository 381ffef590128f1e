package model

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRaceDate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{
			name: "date only",
			in:   "2021-03-28",
			want: time.Date(2021, 3, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "stored datetime",
			in:   "2021-03-28 14:00:00",
			want: time.Date(2021, 3, 28, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "naive T separator",
			in:   "2021-03-28T14:00:00",
			want: time.Date(2021, 3, 28, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "offset dropped, wall clock kept",
			in:   "2021-04-01T00:30:00+09:00",
			want: time.Date(2021, 4, 1, 0, 30, 0, 0, time.UTC),
		},
		{
			name: "utc suffix",
			in:   "2021-03-28T14:00:00Z",
			want: time.Date(2021, 3, 28, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "surrounding whitespace",
			in:   "  2021-03-28  ",
			want: time.Date(2021, 3, 28, 0, 0, 0, 0, time.UTC),
		},
		{name: "empty", in: "", wantErr: true},
		{name: "blank", in: "   ", wantErr: true},
		{name: "garbage", in: "next sunday", wantErr: true},
		{name: "wrong order", in: "28-03-2021", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRaceDate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestStripOffsetKeepsWallClock(t *testing.T) {
	// 00:30 on April 1st at +09:00 is still March 31st in UTC; the wall
	// clock must win.
	src := time.Date(2021, 4, 1, 0, 30, 0, 0, time.FixedZone("JST", 9*3600))
	got := StripOffset(src)

	assert.Equal(t, time.Date(2021, 4, 1, 0, 30, 0, 0, time.UTC), got)
	assert.Equal(t, time.Month(4), TruncateToMonth(got).Month())
}

func TestTruncateToMonth(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2021, 3, 28, 14, 30, 5, 999, time.UTC), time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := TruncateToMonth(tt.in)
		assert.True(t, got.Equal(tt.want), "truncate %s: got %s want %s", tt.in, got, tt.want)
		assert.Equal(t, 1, got.Day())
	}
}

func TestFirstOfMonth(t *testing.T) {
	assert.True(t, FirstOfMonth(time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, FirstOfMonth(time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC)))
	assert.False(t, FirstOfMonth(time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, FirstOfMonth(time.Time{}))
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2021-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2021-03-01", FormatMonth(m))

	_, err = ParseMonth("2021-03")
	assert.Error(t, err)
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, "10", FormatDecimal(10))
	assert.Equal(t, "25.5", FormatDecimal(25.5))
	assert.Equal(t, "0.25", FormatDecimal(0.25))
	assert.Equal(t, "-3", FormatDecimal(-3))

	assert.Equal(t, "", FormatNullableDecimal(nil))
	assert.Equal(t, "0.5", FormatNullableDecimal(Float64(0.5)))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrSchema, "schema"},
		{eris.Wrap(ErrParse, "points"), "parse"},
		{eris.Wrapf(ErrInvariant, "row count changed: got %d, want %d", 4, 5), "invariant"},
		{eris.Wrap(eris.Wrap(ErrIntegrity, "partition sweep"), "by_month"), "integrity"},
		{eris.New("unrelated"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err))
	}
}
