package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var timePattern = regexp.MustCompile(`^(\d+:)?([0-5]?\d:)?[0-5]?\d(\.\d{0,3})?$`)

// ParseElapsed converts "[[hh:]mm:]ss[.dd]" into seconds.
func ParseElapsed(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !timePattern.MatchString(s) {
		return 0, fmt.Errorf("time %q must be formatted as [[hh:]mm:]ss[.dd]", s)
	}

	parts := strings.Split(s, ":")
	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("time %q: %w", s, err)
		}
		if i < len(parts)-1 {
			total = (total + v) * 60
		} else {
			total += v
		}
	}
	return total, nil
}

// hundredths rounds seconds to an integral count of hundredths.
func hundredths(secs float64) int64 {
	return int64(math.Round(secs * 100))
}

// FormatElapsed renders seconds as h:mm:ss.dd for display.
func FormatElapsed(secs float64) string {
	hs := hundredths(secs)
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs/360000, (hs/6000)%60, (hs%6000)/100, hs%100)
}

// FormatTimeOfDay renders seconds as hh:mm:ss.dd, the export column format.
func FormatTimeOfDay(secs float64) string {
	hs := hundredths(secs)
	return fmt.Sprintf("%02d:%02d:%02d.%02d", hs/360000, (hs/6000)%60, (hs%6000)/100, hs%100)
}
