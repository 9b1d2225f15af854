// Package geometry provides deterministic hashing and point-distribution helpers
// shared by the layout engine.
package geometry

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// GoldenAngle is the golden angle in radians: pi * (3 - sqrt(5)).
var GoldenAngle = math.Pi * (3 - math.Sqrt(5))

// GoldenAngleDegrees is GoldenAngle in degrees, about 137.508.
var GoldenAngleDegrees = GoldenAngle * 180 / math.Pi

// Vec3 is a point in 3D space. 2D layouts leave Z at zero.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Flatten drops the Z component.
func (v Vec3) Flatten() Vec3 {
	return Vec3{X: v.X, Y: v.Y}
}

// HashUnit maps (salt, s) to a float in [0, 1).
// The value is the top 53 bits of xxhash64(salt + ":" + s) divided by 2^53, so it
// is stable across processes, platforms and Go versions.
func HashUnit(s, salt string) float64 {
	h := xxhash.Sum64String(salt + ":" + s)
	return float64(h>>11) / (1 << 53)
}

// HashSigned maps (salt, s) to a float in [-1, 1).
func HashSigned(s, salt string) float64 {
	return 2*HashUnit(s, salt) - 1
}

// FibonacciSphere distributes n points evenly over a sphere of the given radius
// using the golden-angle spiral. Point i sits at spiral angle i*GoldenAngle, so
// point 0 is at angle 0.
func FibonacciSphere(n int, radius float64) []Vec3 {
	if n <= 0 {
		return nil
	}
	points := make([]Vec3, n)
	for i := 0; i < n; i++ {
		y := 1 - (2*float64(i)+1)/float64(n)
		r := math.Sqrt(1 - y*y)
		theta := GoldenAngle * float64(i)
		points[i] = Vec3{
			X: math.Cos(theta) * r * radius,
			Y: y * radius,
			Z: math.Sin(theta) * r * radius,
		}
	}
	return points
}

// CirclePoints distributes n points evenly on a circle in the XY plane.
// A single point is placed at the center.
func CirclePoints(n int, radius float64, center Vec3) []Vec3 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []Vec3{center}
	}
	points := make([]Vec3, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		points[i] = Vec3{
			X: center.X + math.Cos(a)*radius,
			Y: center.Y + math.Sin(a)*radius,
			Z: center.Z,
		}
	}
	return points
}

// RingPoints distributes n points evenly on a horizontal ring (XZ plane) around
// center. Unlike CirclePoints, a single point is placed on the ring.
func RingPoints(n int, radius float64, center Vec3) []Vec3 {
	if n <= 0 {
		return nil
	}
	points := make([]Vec3, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		points[i] = Vec3{
			X: center.X + math.Cos(a)*radius,
			Y: center.Y,
			Z: center.Z + math.Sin(a)*radius,
		}
	}
	return points
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// BoundsOf computes the bounding box of points; empty input yields a zero box.
func BoundsOf(points []Vec3) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Min.Z = math.Min(b.Min.Z, p.Z)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
		b.Max.Z = math.Max(b.Max.Z, p.Z)
	}
	return b
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
