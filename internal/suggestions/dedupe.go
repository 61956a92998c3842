package suggestions

import (
	"fmt"
	"math"
)

// materialChange is the relative difference at which numeric evidence counts as new.
const materialChange = 0.25

// MateriallyChanged reports whether next carries different evidence than prev:
// a different key set, a different non-numeric value, or a numeric value that
// moved by at least 25% relative to prev.
func MateriallyChanged(prev, next map[string]any) bool {
	if len(prev) != len(next) {
		return true
	}
	for k, pv := range prev {
		nv, ok := next[k]
		if !ok {
			return true
		}
		pf, pNum := toFloat(pv)
		nf, nNum := toFloat(nv)
		switch {
		case pNum && nNum:
			base := math.Abs(pf)
			if base == 0 {
				if nf != 0 {
					return true
				}
				continue
			}
			if math.Abs(nf-pf)/base >= materialChange {
				return true
			}
		case pNum != nNum:
			return true
		default:
			if fmt.Sprint(pv) != fmt.Sprint(nv) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
