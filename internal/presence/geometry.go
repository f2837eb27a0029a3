package presence

// Point is a position in normalized slide space, each coordinate in [0,1].
// Normalized positions are independent of zoom and container pixel size; zoom
// is applied at render time only.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sentinel is broadcast on mouse-leave instead of a dedicated "peer left"
// message; receivers hide the cursor when they see it.
var Sentinel = Point{X: -1, Y: -1}

func (p Point) IsSentinel() bool {
	return p.X < 0 || p.Y < 0
}

// Normalize converts pointer pixel coordinates (relative to the slide
// container) into slide-space fractions. No zoom factor is applied at send
// time.
func Normalize(px, py, containerW, containerH float64) Point {
	if containerW <= 0 || containerH <= 0 {
		return Sentinel
	}
	return Point{X: px / containerW, Y: py / containerH}
}

// Denormalize projects a normalized position onto the local viewer's
// container at its current zoom level (percent, 100 = native size). Each
// viewer may be at a different zoom, so this, not the stored value,
// determines the screen location.
func Denormalize(p Point, containerW, containerH, zoom float64) (float64, float64) {
	scale := zoom / 100
	return p.X * containerW * scale, p.Y * containerH * scale
}
