package password

import "strings"

// Strength scores.
const (
	VeryWeak = iota
	Weak
	Fair
	Strong
	VeryStrong
)

// StrengthResult is the outcome of [CheckStrength]. Errors make the password
// unacceptable; Warnings only explain score penalties.
type StrengthResult struct {
	Valid    bool
	Score    int
	Errors   []string
	Warnings []string
	Feedback string
	Label    string
}

var sequentialRuns = []string{
	"012", "123", "234", "345", "456", "567", "678", "789",
	"abc", "bcd", "cde",
}

var keyboardRuns = []string{"qwert", "asdf", "zxcv", "qaz", "wsx"}

// CheckStrength scores a candidate password 0 through 4. Length is the
// primary signal; composition rules are never required, but sequential runs,
// character repeats and keyboard walks cost a point each and diversity of
// characters earns one back.
func CheckStrength(password string) StrengthResult {
	var res StrengthResult

	n := len(password)
	switch {
	case n < 8:
		res.Errors = append(res.Errors, "Password must be at least 8 characters long")
	case n > 128:
		res.Errors = append(res.Errors, "Password must not exceed 128 characters")
	}

	switch {
	case n >= 20:
		res.Score = VeryStrong
	case n >= 16:
		res.Score = Strong
	case n >= 12:
		res.Score = Fair
	case n >= 8:
		res.Score = Weak
	}

	if n >= 8 {
		lower := strings.ToLower(password)
		if containsAny(lower, sequentialRuns) {
			res.Warnings = append(res.Warnings, "Avoid sequential characters")
			res.Score = max(res.Score-1, Weak)
		}
		if hasTripleRepeat(password) {
			res.Warnings = append(res.Warnings, "Avoid repeated characters")
			res.Score = max(res.Score-1, Weak)
		}
		if containsAny(lower, keyboardRuns) {
			res.Warnings = append(res.Warnings, "Avoid keyboard patterns")
			res.Score = max(res.Score-1, Weak)
		}
	}

	if n >= 8 && uniqueChars(password)*10 >= n*7 {
		res.Score = min(res.Score+1, VeryStrong)
	}

	res.Valid = len(res.Errors) == 0
	res.Feedback = feedback(n, res.Score, varietyCount(password))
	res.Label = label(res.Score)
	return res
}

func containsAny(s string, runs []string) bool {
	for _, run := range runs {
		if strings.Contains(s, run) {
			return true
		}
	}
	return false
}

func hasTripleRepeat(s string) bool {
	runes := []rune(s)
	for i := 2; i < len(runes); i++ {
		if runes[i] == runes[i-1] && runes[i] == runes[i-2] {
			return true
		}
	}
	return false
}

func uniqueChars(s string) int {
	seen := make(map[rune]struct{}, len(s))
	for _, r := range s {
		seen[r] = struct{}{}
	}
	return len(seen)
}

func varietyCount(s string) int {
	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	n := 0
	for _, ok := range []bool{lower, upper, digit, special} {
		if ok {
			n++
		}
	}
	return n
}

func label(score int) string {
	switch score {
	case VeryWeak:
		return "Very Weak"
	case Weak:
		return "Weak"
	case Fair:
		return "Fair"
	case Strong:
		return "Strong"
	case VeryStrong:
		return "Very Strong"
	}
	return "Unknown"
}

func feedback(length, score, variety int) string {
	if length < 8 {
		return "Password is too short. Use at least 8 characters."
	}
	switch score {
	case VeryStrong:
		return "Excellent password strength!"
	case Strong:
		return "Good password strength. Consider making it longer for extra security."
	case Fair:
		return "Moderate password strength. Consider using a longer password or passphrase."
	}
	if variety < 2 {
		return "Consider mixing different character types for better security."
	}
	if length < 12 {
		return "Consider using a longer password (12+ characters) for better security."
	}
	return "Consider using a longer and more varied password."
}
