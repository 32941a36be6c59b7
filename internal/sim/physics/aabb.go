package physics

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned box in world pixels, y up. Max is exclusive.
type AABB struct {
	Min mgl32.Vec2
	Max mgl32.Vec2
}

// BoxFromDimensions returns a box whose bottom-left corner sits at pos.
func BoxFromDimensions(pos mgl32.Vec2, width, height float32) AABB {
	return AABB{Min: pos, Max: pos.Add(mgl32.Vec2{width, height})}
}

func (a AABB) Translate(d mgl32.Vec2) AABB {
	return AABB{Min: a.Min.Add(d), Max: a.Max.Add(d)}
}

func (a AABB) Intersects(b AABB) bool {
	return a.Min.X() < b.Max.X() && a.Max.X() > b.Min.X() &&
		a.Min.Y() < b.Max.Y() && a.Max.Y() > b.Min.Y()
}

func (a AABB) Center() mgl32.Vec2 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// cellRange returns the inclusive block cell span covered by the box.
func (a AABB) cellRange(blockPx float32) (x0, y0, x1, y1 int) {
	const eps = 1e-3
	x0 = int(math32.Floor(a.Min.X() / blockPx))
	y0 = int(math32.Floor(a.Min.Y() / blockPx))
	x1 = int(math32.Floor((a.Max.X() - eps) / blockPx))
	y1 = int(math32.Floor((a.Max.Y() - eps) / blockPx))
	return
}

func approxEq(a, b float32) bool {
	return math32.Abs(a-b) <= 1e-4
}
