package mathx

import "math"

// Mixing constants are part of the save format: changing them changes every
// replayed selection.
const (
	golden   = 0x9e3779b97f4a7c15
	mixMulA  = 0xbf58476d1ce4e5b9
	mixMulB  = 0x94d049bb133111eb
	laneMulY = 0xc2b2ae3d27d4eb4f

	fnvOffset = 1469598103934665603
	fnvPrime  = 1099511628211
)

// Mix64 is the splitmix64 finalizer.
func Mix64(z uint64) uint64 {
	z += golden
	z = (z ^ (z >> 30)) * mixMulA
	z = (z ^ (z >> 27)) * mixMulB
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z uint64) uint64 {
	v := uint64(seed) ^ (x * golden) ^ (z * mixMulA)
	return Mix64(v)
}

func Hash3(seed int64, x, y, z uint64) uint64 {
	v := uint64(seed) ^ (x * golden) ^ (y * laneMulY) ^ (z * mixMulA)
	return Mix64(v)
}

// HashString is FNV-1a 64-bit.
func HashString(s string) uint64 {
	var h uint64 = fnvOffset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime
	}
	return h
}

// Unit maps a hash to [0,1) using the top 53 bits.
func Unit(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

func Clamp32(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func Clamp64(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func ApproxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// TicksSince returns now-then, or 0 when then is in the future.
func TicksSince(now, then uint64) uint64 {
	if then >= now {
		return 0
	}
	return now - then
}
