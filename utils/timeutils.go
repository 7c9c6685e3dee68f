package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseClock converts "HH:MM" or "HH:MM:SS" into minutes from the service-day epoch.
// Hours past 23 are allowed and keep counting: "25:10:00" is 1510.
func ParseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock value %q", s)
		}
		vals[i] = n
	}
	if vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return float64(vals[0]*60+vals[1]) + float64(vals[2])/60, nil
}

// FormatClock renders minutes from the service-day epoch as HH:MM:SS, past 24:00 when needed
func FormatClock(minutes float64) string {
	if math.IsInf(minutes, 0) || math.IsNaN(minutes) {
		return "--:--:--"
	}
	total := int(math.Round(minutes * 60))
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, total/3600, (total/60)%60, total%60)
}
