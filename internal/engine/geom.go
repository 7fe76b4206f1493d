package engine

import "math"

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X float64 `cbor:"x" json:"x"`
	Y float64 `cbor:"y" json:"y"`
	Z float64 `cbor:"z" json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(f float64) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }
func (v Vec3) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }
func (v Vec3) Lerp(o Vec3, t float64) Vec3 { return v.Add(o.Sub(v).Scale(t)) }

// Sphere is a bounding sphere, used to frame the camera.
type Sphere struct {
	Center Vec3
	Radius float64
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min Vec3 `cbor:"min" json:"min"`
	Max Vec3 `cbor:"max" json:"max"`
}

// Empty reports whether b has no extent.
func (b Box) Empty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

// Center returns the midpoint of b.
func (b Box) Center() Vec3 { return b.Min.Lerp(b.Max, 0.5) }

// BoundingSphere returns the smallest sphere centred on b that contains it.
func (b Box) BoundingSphere() Sphere {
	return Sphere{Center: b.Center(), Radius: b.Min.Distance(b.Max) / 2}
}

// Expand grows b to include p.
func (b Box) Expand(p Vec3) Box {
	return Box{
		Min: Vec3{math.Min(b.Min.X, p.X), math.Min(b.Min.Y, p.Y), math.Min(b.Min.Z, p.Z)},
		Max: Vec3{math.Max(b.Max.X, p.X), math.Max(b.Max.Y, p.Y), math.Max(b.Max.Z, p.Z)},
	}
}

// BoxOf returns the bounds of points. It is Empty for no points.
func BoxOf(points ...Vec3) Box {
	if len(points) == 0 {
		inf := math.Inf(1)
		return Box{Min: Vec3{inf, inf, inf}, Max: Vec3{-inf, -inf, -inf}}
	}
	b := Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b = b.Expand(p)
	}
	return b
}
