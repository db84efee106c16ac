package geom

import "math"

// NormalizeDeg wraps an angle into [0, 360).
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// SnapDeg rounds an angle to the nearest multiple of step, then wraps it
// into [0, 360). A step of zero or less leaves the angle unsnapped.
func SnapDeg(deg, step float64) float64 {
	if step <= 0 {
		return NormalizeDeg(deg)
	}
	return NormalizeDeg(math.Round(deg/step) * step)
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// RotatePoint rotates p around center by the given angle in degrees.
func RotatePoint(p, center Point, deg float64) Point {
	rad := Radians(deg)
	cos := math.Cos(rad)
	sin := math.Sin(rad)
	dx := p.X - center.X
	dy := p.Y - center.Y
	return Point{
		X: center.X + dx*cos - dy*sin,
		Y: center.Y + dx*sin + dy*cos,
	}
}
