package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseClock reads a GTFS time string such as "25:10:00" back into seconds.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time format: %s", s)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}
	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}

func TestFormatClock(t *testing.T) {
	cases := map[int]string{
		0:     "00:00:00",
		3661:  "01:01:01",
		86399: "23:59:59",
		90000: "25:00:00",
		-90:   "-00:01:30",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatClock(in), "seconds %d", in)
	}
}

func TestFormatClockRoundTrip(t *testing.T) {
	for _, s := range []string{"00:00:00", "01:01:01", "25:00:00", "27:45:09"} {
		n, err := parseClock(s)
		require.NoError(t, err)
		assert.Equal(t, s, FormatClock(n))
	}
}

func TestParseClockRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "12:00", "aa:00:00", "10:60:00", "10:00:61", "-1:00:00"} {
		_, err := parseClock(s)
		assert.Error(t, err, "input %q", s)
	}
}
