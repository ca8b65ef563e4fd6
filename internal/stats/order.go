package stats

import (
	"cmp"
	"strconv"
	"strings"
)

// CompareGroupNames orders group labels the way experiment days are read:
// runs of digits, including a decimal part, compare by numeric value, so
// "Day_2" < "Day_10" and "1.5" < "2". Other text compares byte-wise. It
// returns -1, 0 or +1 and is usable with slices.SortFunc; names that only
// differ in number spelling ("2" and "02") fall back to byte order.
func CompareGroupNames(x, y string) int {
	a, b := x, y
	for a != "" && b != "" {
		ta, na, ra := nextToken(a)
		tb, nb, rb := nextToken(b)
		switch {
		case na && nb:
			va, _ := strconv.ParseFloat(ta, 64)
			vb, _ := strconv.ParseFloat(tb, 64)
			if c := cmp.Compare(va, vb); c != 0 {
				return c
			}
		default:
			if c := strings.Compare(ta, tb); c != 0 {
				return c
			}
		}
		a, b = ra, rb
	}
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(x, y)
}

// nextToken splits off the leading number (digits with an optional
// fractional part) or the leading run of non-digits.
func nextToken(s string) (token string, numeric bool, rest string) {
	i := 0
	if isDigit(s[0]) {
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i+1 < len(s) && s[i] == '.' && isDigit(s[i+1]) {
			i++
			for i < len(s) && isDigit(s[i]) {
				i++
			}
		}
		return s[:i], true, s[i:]
	}
	for i < len(s) && !isDigit(s[i]) {
		i++
	}
	return s[:i], false, s[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
