package fs

import (
	"strconv"
	"strings"
	"time"
)

// unitTable maps every accepted unit spelling (spec §6) to its
// multiplier in nanoseconds. Omitted unit means milliseconds.
var unitTable = map[string]time.Duration{
	"":             time.Millisecond,
	"d":            24 * time.Hour,
	"day":          24 * time.Hour,
	"days":         24 * time.Hour,
	"h":            time.Hour,
	"hour":         time.Hour,
	"hours":        time.Hour,
	"m":            time.Minute,
	"min":          time.Minute,
	"mins":         time.Minute,
	"minute":       time.Minute,
	"minutes":      time.Minute,
	"s":            time.Second,
	"sec":          time.Second,
	"secs":         time.Second,
	"second":       time.Second,
	"seconds":      time.Second,
	"ms":           time.Millisecond,
	"milli":        time.Millisecond,
	"millis":       time.Millisecond,
	"millisecond":  time.Millisecond,
	"milliseconds": time.Millisecond,
	"µs":           time.Microsecond,
	"micro":        time.Microsecond,
	"micros":       time.Microsecond,
	"microsecond":  time.Microsecond,
	"microseconds": time.Microsecond,
	"ns":           time.Nanosecond,
	"nano":         time.Nanosecond,
	"nanos":        time.Nanosecond,
	"nanosecond":   time.Nanosecond,
	"nanoseconds":  time.Nanosecond,
}

// ParseDuration parses the grammar <integer><unit> described in spec
// §6. An empty unit means milliseconds. Overflow or an unknown unit
// returns a *Error of KindInvalidArgument.
func ParseDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, New(KindInvalidArgument, "empty duration")
	}

	i := 0
	for i < len(trimmed) && (trimmed[i] == '-' || trimmed[i] == '+' || (trimmed[i] >= '0' && trimmed[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, New(KindInvalidArgument, "invalid duration: "+s)
	}
	numPart := trimmed[:i]
	unitPart := strings.ToLower(strings.TrimSpace(trimmed[i:]))

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, New(KindInvalidArgument, "invalid duration: "+s)
	}

	mult, ok := unitTable[unitPart]
	if !ok {
		return 0, New(KindInvalidArgument, "unknown duration unit: "+unitPart)
	}

	// Overflow check: n * mult must not overflow int64.
	product := n * int64(mult)
	if mult != 0 && product/int64(mult) != n {
		return 0, New(KindInvalidArgument, "duration overflow: "+s)
	}

	return time.Duration(product), nil
}
