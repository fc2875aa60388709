package analysis

// CrossesAbove reports whether series a crossed above series b at the most
// recent bar: a was at or below b on the preceding bar and is strictly above
// it now. Both series must be aligned to the same bars. Fewer than 2 defined
// aligned points is insufficient data and reports false.
func CrossesAbove(a, b []float64) bool {
	prevA, prevB, curA, curB, ok := lastTwoAligned(a, b)
	if !ok {
		return false
	}
	return prevA <= prevB && curA > curB
}

// CrossesBelow reports whether series a crossed below series b at the most
// recent bar.
func CrossesBelow(a, b []float64) bool {
	prevA, prevB, curA, curB, ok := lastTwoAligned(a, b)
	if !ok {
		return false
	}
	return prevA >= prevB && curA < curB
}

// lastTwoAligned extracts the values at the last two bar positions where
// both series are defined at both positions.
func lastTwoAligned(a, b []float64) (prevA, prevB, curA, curB float64, ok bool) {
	if len(a) != len(b) || len(a) < 2 {
		return 0, 0, 0, 0, false
	}
	i := len(a) - 1
	if !Defined(a[i]) || !Defined(b[i]) || !Defined(a[i-1]) || !Defined(b[i-1]) {
		return 0, 0, 0, 0, false
	}
	return a[i-1], b[i-1], a[i], b[i], true
}
