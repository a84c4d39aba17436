package authkit

import "strings"

// deviceName derives a coarse human-readable label from a User-Agent string
// for session listings. It is a heuristic, not a parser; anything it does
// not recognize becomes "Unknown Device".
func deviceName(ua string) string {
	if ua == "" {
		return ""
	}
	s := strings.ToLower(ua)

	switch {
	case strings.Contains(s, "iphone"):
		return "iPhone"
	case strings.Contains(s, "ipad"):
		return "iPad"
	case strings.Contains(s, "android") && strings.Contains(s, "mobile"):
		return "Android Phone"
	case strings.Contains(s, "android"):
		return "Android Tablet"
	}

	switch {
	case strings.Contains(s, "chrome"):
		return "Chrome Browser"
	case strings.Contains(s, "safari"):
		return "Safari Browser"
	case strings.Contains(s, "firefox"):
		return "Firefox Browser"
	case strings.Contains(s, "edge"):
		return "Edge Browser"
	}
	return "Unknown Device"
}
