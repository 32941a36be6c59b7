package gen

import "sidecraft.ai/internal/sim/world/logic/mathx"

func FloorDiv(a, b int) int {
	return mathx.FloorDiv(a, b)
}

func Hash1(seed int64, x int) uint64 {
	return mathx.Hash1(seed, x)
}

func Hash2(seed int64, x, y int) uint64 {
	return mathx.Hash2(seed, x, y)
}

func ClampPermille(v int) int {
	return mathx.ClampInt(v, 0, 1000)
}

// Roll reports whether the hash of (seed, x) lands under permille.
func Roll(seed int64, x, permille int) bool {
	return Hash1(seed, x)%1000 < uint64(ClampPermille(permille))
}

// InCluster reports whether (x,y) falls inside a disc of the given radius centred on a randomly
// placed point of a grid cell. Each cell holds at most one disc, present with probPermille.
func InCluster(seed int64, x, y, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := FloorDiv(x, grid)
	gy := FloorDiv(y, grid)
	r2 := radius * radius

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgy := gy + dy
			h := Hash2(seed, cgx, cgy)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oy := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cy := cgy*grid + oy

			ddx := x - cx
			ddy := y - cy
			if ddx*ddx+ddy*ddy <= r2 {
				return true
			}
		}
	}
	return false
}
