package collective

import "fmt"

// A ReduceFn combines src into dst elementwise. Both slices
// always have the same length.
type ReduceFn func(dst, src []float64)

// Sum adds src into dst.
var Sum ReduceFn = func(dst, src []float64) {
	for i, x := range src {
		dst[i] += x
	}
}

// Max keeps the elementwise maximum in dst.
var Max ReduceFn = func(dst, src []float64) {
	for i, x := range src {
		if x > dst[i] {
			dst[i] = x
		}
	}
}

// A ReduceOp names a reduction so that it can travel over a
// wire protocol.
type ReduceOp int32

const (
	OpSum ReduceOp = iota
	OpMax
)

// Valid reports whether the op names a known reduction.
// Values arriving over a wire should be checked before Fn is
// called on them.
func (r ReduceOp) Valid() bool {
	return r == OpSum || r == OpMax
}

// Fn returns the ReduceFn the op names.
func (r ReduceOp) Fn() ReduceFn {
	switch r {
	case OpSum:
		return Sum
	case OpMax:
		return Max
	default:
		panic(fmt.Sprintf("unknown ReduceOp %d", int32(r)))
	}
}

func (r ReduceOp) String() string {
	switch r {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	default:
		return fmt.Sprintf("ReduceOp(%d)", int32(r))
	}
}
