package mathx

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash1 hashes a single lattice coordinate.
func Hash1(seed int64, x int) uint64 {
	ux := uint64(uint32(int32(x)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15))
}

func Hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit maps a hash to [0,1).
func Unit(h uint64) float64 {
	return float64(h>>11) / float64(1<<53)
}

// ValueNoise1 is smoothstep-interpolated lattice noise in [0,1). period is the lattice spacing in
// blocks; sampling by world coordinate keeps chunk seams continuous.
func ValueNoise1(seed int64, x, period int) float64 {
	if period <= 0 {
		period = 1
	}
	cell := FloorDiv(x, period)
	t := float64(Mod(x, period)) / float64(period)
	a := Unit(Hash1(seed, cell))
	b := Unit(Hash1(seed, cell+1))
	t = t * t * (3 - 2*t)
	return a + (b-a)*t
}
