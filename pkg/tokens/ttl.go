package tokens

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ttlGrammar = regexp.MustCompile(`^(\d+)([smhd])$`)

// maxTTLSeconds is the largest second count a time.Duration can hold.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

var unitSeconds = map[string]int64{"s": 1, "m": 60, "h": 3600, "d": 86400}

// ParseTTL accepts a second count (int, int64, float64 from JSON, or a digit string)
// or the duration grammar <int><s|m|h|d>. Zero and negative values are rejected.
func ParseTTL(v any) (time.Duration, error) {
	var secs int64
	switch t := v.(type) {
	case time.Duration:
		secs = int64(t / time.Second)
	case int:
		secs = int64(t)
	case int64:
		secs = t
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%w: ttl %v is not a whole number of seconds", ErrInvalidRequest, t)
		}
		if t > float64(maxTTLSeconds) {
			return 0, fmt.Errorf("%w: ttl %v is too large", ErrInvalidRequest, t)
		}
		secs = int64(t)
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			secs = n
			break
		}
		m := ttlGrammar.FindStringSubmatch(s)
		if m == nil {
			return 0, fmt.Errorf("%w: ttl %q must be seconds or <int><s|m|h|d>", ErrInvalidRequest, t)
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: ttl %q: %v", ErrInvalidRequest, t, err)
		}
		unit := unitSeconds[m[2]]
		if n > maxTTLSeconds/unit {
			return 0, fmt.Errorf("%w: ttl %q is too large", ErrInvalidRequest, t)
		}
		secs = n * unit
	default:
		return 0, fmt.Errorf("%w: unsupported ttl type %T", ErrInvalidRequest, v)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("%w: ttl must be positive", ErrInvalidRequest)
	}
	if secs > maxTTLSeconds {
		return 0, fmt.Errorf("%w: ttl of %d seconds is too large", ErrInvalidRequest, secs)
	}
	return time.Duration(secs) * time.Second, nil
}
