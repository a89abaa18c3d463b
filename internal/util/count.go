package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var reThousandsComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)

// ParseCount parses a copy count cell. Absent, unparsable, negative and
// fractional values all yield 0. A dot is always a decimal point, so
// "1.200" is fractional; only commas group thousands.
func ParseCount(v *string) int {
	if v == nil {
		return 0
	}
	token := normalizeNumericToken(strings.TrimSpace(*v))
	if token == "" {
		return 0
	}
	if n, err := strconv.Atoi(token); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	f, err := strconv.ParseFloat(token, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, "\u00A0", "")
	compact = strings.ReplaceAll(compact, " ", "")
	if reThousandsComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
