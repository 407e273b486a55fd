package rollup

// SafeDivide returns num/den, or 0 when the denominator is 0. An empty
// denominator means the ratio is reported as 0, not NaN/Inf; this is the
// business rule the whole derivation layer relies on.
func SafeDivide(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
