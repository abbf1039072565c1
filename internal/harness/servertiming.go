package harness

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseServerTiming extracts the server's processing time from a
// server-timing header value such as "cfRequestDuration;dur=123.45".
//
// The first dur= token across the semicolon-separated segments wins.
// Returns ok=false when no dur= token is present or its value is
// negative, NaN, infinite, or not a number.
func ParseServerTiming(header string) (time.Duration, bool) {
	for _, segment := range strings.Split(header, ";") {
		segment = strings.TrimSpace(segment)
		value, found := strings.CutPrefix(segment, "dur=")
		if !found {
			continue
		}

		ms, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
			return 0, false
		}
		return time.Duration(ms * float64(time.Millisecond)), true
	}
	return 0, false
}
