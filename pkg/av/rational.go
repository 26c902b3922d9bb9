package av

import (
	"math"
	"math/bits"
)

// Rational is an exact fraction used as the clock unit for timestamps.
type Rational struct {
	Num int64
	Den int64
}

// MicrosecondTimeBase is the 1/1000000 reference clock used for durations
// held as microsecond counts.
var MicrosecondTimeBase = Rational{Num: 1, Den: 1000000}

// Seconds converts a timestamp in this time base to seconds.
func (r Rational) Seconds(ts int64) float64 {
	return float64(ts) * float64(r.Num) / float64(r.Den)
}

// CompareTS compares timestamp a in time base tbA against timestamp b in
// time base tbB without converting either to the other's clock (which
// would round). It returns -1 when a is the earlier instant, 1 when it is
// the later one and 0 when both are equal.
func CompareTS(a int64, tbA Rational, b int64, tbB Rational) int {
	fa := tbA.Num * tbB.Den
	fb := tbB.Num * tbA.Den
	if magnitude(a)|magnitude(fa)|magnitude(b)|magnitude(fb) <= math.MaxInt32 {
		x, y := a*fa, b*fb
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return compareWide(a, fa, b, fb)
}

// compareWide compares a*fa against b*fb using 128-bit products.
func compareWide(a, fa, b, fb int64) int {
	sa := productSign(a, fa)
	sb := productSign(b, fb)
	if sa != sb {
		if sa < sb {
			return -1
		}
		return 1
	}
	hiA, loA := bits.Mul64(magnitude(a), magnitude(fa))
	hiB, loB := bits.Mul64(magnitude(b), magnitude(fb))
	c := 0
	switch {
	case hiA < hiB, hiA == hiB && loA < loB:
		c = -1
	case hiA > hiB, hiA == hiB && loA > loB:
		c = 1
	}
	if sa < 0 {
		c = -c
	}
	return c
}

func productSign(x, y int64) int {
	if x == 0 || y == 0 {
		return 0
	}
	if (x < 0) != (y < 0) {
		return -1
	}
	return 1
}

// magnitude returns |x| as a uint64; exact even for math.MinInt64.
func magnitude(x int64) uint64 {
	if x < 0 {
		return uint64(-x)
	}
	return uint64(x)
}
