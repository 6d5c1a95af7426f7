package iiif

import (
	"strconv"
	"strings"
)

const percentPrefix = "pct:"

// parseDecimal accepts plain decimal notation only: an optional sign, digits
// and, when fraction is true, at most one decimal point. Exponents, hex
// floats, NaN and Inf are rejected even though strconv would take them.
func parseDecimal(tok string, fraction bool) (float64, bool) {
	body := strings.TrimLeft(tok, "+-")
	if len(tok)-len(body) > 1 || body == "" {
		return 0, false
	}

	digits, dots := 0, 0
	for _, r := range body {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' && fraction:
			dots++
		default:
			return 0, false
		}
	}
	if digits == 0 || dots > 1 {
		return 0, false
	}

	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
