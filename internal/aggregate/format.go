package aggregate

import (
	"math"
	"strconv"
	"strings"
)

// FormatCurrency renders a dollar amount with thousands separators and
// cents, e.g. -1234.5 as "-$1,234.50".
func FormatCurrency(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cents := int64(math.Round(amount * 100))
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	frac := cents % 100
	return sign + "$" + b.String() + "." + string(rune('0'+frac/10)) + string(rune('0'+frac%10))
}
