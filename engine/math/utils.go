package math

import "golang.org/x/exp/constraints"

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// MipDimension returns the size of base at mip level, halving per level
// with a floor of 1.
func MipDimension[T constraints.Unsigned](base T, level uint32) T {
	if level >= 64 {
		return 1
	}
	return Max(base>>level, 1)
}

// MipLevelCount returns the length of a full mip chain for the largest
// of the given dimensions.
func MipLevelCount[T constraints.Unsigned](dims ...T) uint32 {
	var largest T
	for _, d := range dims {
		largest = Max(largest, d)
	}
	var n uint32 = 1
	for largest > 1 {
		largest >>= 1
		n++
	}
	return n
}
