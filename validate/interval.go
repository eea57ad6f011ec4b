// Package validate implements the two pre-flight checks the OHLCV client
// facade runs before opening a Transport: interval grammar validation (pure)
// and symbol existence validation (an HTTPS pre-flight, §4.H).
package validate

import (
	"regexp"
	"strconv"
	"time"

	"github.com/haidl/tvstream/errs"
)

var (
	minutePattern = regexp.MustCompile(`^[1-9][0-9]*$`)
	secondPattern = regexp.MustCompile(`^[1-9][0-9]*S$`)
	hourPattern   = regexp.MustCompile(`^[1-9][0-9]*H$`)
	dayPattern    = regexp.MustCompile(`^([1-9][0-9]*)?D$`)
	weekPattern   = regexp.MustCompile(`^([1-9][0-9]*)?W$`)
	monthPattern  = regexp.MustCompile(`^([1-9][0-9]*)?M$`)
)

// Interval validates s against the grammar in spec §3.1 and returns an
// *errs.Error of kind InvalidInterval describing which clause failed and
// the accepted range when it doesn't match any of them.
func Interval(s string) error {
	switch {
	case minutePattern.MatchString(s):
		return checkRange(s, s, 1, 1440, "minutes")
	case secondPattern.MatchString(s):
		return checkRange(s, s[:len(s)-1], 1, 60, "seconds")
	case hourPattern.MatchString(s):
		return checkRange(s, s[:len(s)-1], 1, 168, "hours")
	case dayPattern.MatchString(s):
		return checkRangeWithDefault(s, s[:len(s)-1], 1, 365, "days")
	case weekPattern.MatchString(s):
		return checkRangeWithDefault(s, s[:len(s)-1], 1, 52, "weeks")
	case monthPattern.MatchString(s):
		return checkRangeWithDefault(s, s[:len(s)-1], 1, 12, "months")
	default:
		return errs.New(errs.KindInvalidInterval,
			"interval "+strconv.Quote(s)+" matches none of the minute/second/hour/day/week/month grammars")
	}
}

// Duration returns the wall-clock span of one bar at s, for callers that
// need to stamp a candle's CloseTime from its OpenTime. Week/month are
// approximated as 7/30 days; callers needing exchange-calendar accuracy
// should treat this as a display hint, not a settlement value. s is assumed
// already accepted by Interval.
func Duration(s string) time.Duration {
	switch {
	case minutePattern.MatchString(s):
		n, _ := strconv.Atoi(s)
		return time.Duration(n) * time.Minute
	case secondPattern.MatchString(s):
		n, _ := strconv.Atoi(s[:len(s)-1])
		return time.Duration(n) * time.Second
	case hourPattern.MatchString(s):
		n, _ := strconv.Atoi(s[:len(s)-1])
		return time.Duration(n) * time.Hour
	case dayPattern.MatchString(s):
		n := digitsOrOne(s[:len(s)-1])
		return time.Duration(n) * 24 * time.Hour
	case weekPattern.MatchString(s):
		n := digitsOrOne(s[:len(s)-1])
		return time.Duration(n) * 7 * 24 * time.Hour
	case monthPattern.MatchString(s):
		n := digitsOrOne(s[:len(s)-1])
		return time.Duration(n) * 30 * 24 * time.Hour
	default:
		return 0
	}
}

func digitsOrOne(digits string) int {
	if digits == "" {
		return 1
	}
	n, _ := strconv.Atoi(digits)
	return n
}

func checkRange(original, digits string, lo, hi int, unit string) error {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return errs.Wrap(errs.KindInvalidInterval, "interval "+original+" is not numeric", err)
	}
	if n < lo || n > hi {
		return errs.New(errs.KindInvalidInterval,
			"interval "+original+" is out of range for "+unit+": accepted ["+strconv.Itoa(lo)+","+strconv.Itoa(hi)+"]")
	}
	return nil
}

func checkRangeWithDefault(original, digits string, lo, hi int, unit string) error {
	if digits == "" {
		return nil // bare "D"/"W"/"M" means 1
	}
	return checkRange(original, digits, lo, hi, unit)
}
