package pipeline

import (
	"math"
	"strconv"
	"strings"
)

// FormatConfidence renders a [0,1] confidence as a percentage. A negative
// precision keeps the default float text (see describeFloat); otherwise the
// value is fixed to that many decimals.
func FormatConfidence(confidence float32, precision int) string {
	pct := confidence * 100
	if precision < 0 {
		return describeFloat(pct) + "%"
	}
	return strconv.FormatFloat(float64(pct), 'f', precision, 32) + "%"
}

// describeFloat prints the shortest digits that round-trip v. Whole values
// keep a trailing ".0" (50 -> "50.0"). Values below 1e-4 or from 2^24 up use
// exponent form ("1e-05", "1.6777216e+07").
func describeFloat(v float32) string {
	switch {
	case math.IsNaN(float64(v)):
		return "nan"
	case math.IsInf(float64(v), 1):
		return "inf"
	case math.IsInf(float64(v), -1):
		return "-inf"
	case v == 0:
		if math.Signbit(float64(v)) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(float64(v), 'e', -1, 32)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil || exp < -4 || math.Abs(float64(v)) >= 1<<24 {
		return sci
	}

	s := strconv.FormatFloat(float64(v), 'f', -1, 32)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
