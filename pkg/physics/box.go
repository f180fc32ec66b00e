package physics

import "math"

// Box is an axis-aligned bounding box stored as a center and half extents.
// Half extents are never negative.
type Box struct {
	Center Vector2D
	Half   Vector2D
}

// NewBox creates a box from a center and half extents
func NewBox(center, half Vector2D) Box {
	return Box{Center: center, Half: half.Abs()}
}

// BoxFromMinMax creates a box spanning the two corners
func BoxFromMinMax(min, max Vector2D) Box {
	return Box{
		Center: Vector2D{X: (min.X + max.X) / 2, Y: (min.Y + max.Y) / 2},
		Half:   Vector2D{X: math.Abs(max.X-min.X) / 2, Y: math.Abs(max.Y-min.Y) / 2},
	}
}

// Min returns the lower corner
func (b Box) Min() Vector2D {
	return b.Center.Sub(b.Half)
}

// Max returns the upper corner
func (b Box) Max() Vector2D {
	return b.Center.Add(b.Half)
}

// Size returns the full width and height
func (b Box) Size() Vector2D {
	return b.Half.Scale(2)
}

// Moved returns the box translated by delta
func (b Box) Moved(delta Vector2D) Box {
	return Box{Center: b.Center.Add(delta), Half: b.Half}
}

// At returns the box re-centered on center
func (b Box) At(center Vector2D) Box {
	return Box{Center: center, Half: b.Half}
}

// Intersects reports whether the closed boxes share at least one point.
// Touching boxes intersect.
func (b Box) Intersects(other Box) bool {
	bmin, bmax := b.Min(), b.Max()
	omin, omax := other.Min(), other.Max()
	return bmin.X <= omax.X && omin.X <= bmax.X &&
		bmin.Y <= omax.Y && omin.Y <= bmax.Y
}

// Overlaps reports whether the boxes overlap with positive area.
// Touching boxes do not overlap.
func (b Box) Overlaps(other Box) bool {
	d := b.Center.Sub(other.Center).Abs()
	h := b.Half.Add(other.Half)
	return d.X < h.X && d.Y < h.Y
}

// ContainsPoint reports whether p lies inside or on the box
func (b Box) ContainsPoint(p Vector2D) bool {
	min, max := b.Min(), b.Max()
	return p.X >= min.X && p.X <= max.X && p.Y >= min.Y && p.Y <= max.Y
}

// Union returns the smallest box containing both boxes
func (b Box) Union(other Box) Box {
	bmin, bmax := b.Min(), b.Max()
	omin, omax := other.Min(), other.Max()
	return BoxFromMinMax(
		Vector2D{X: math.Min(bmin.X, omin.X), Y: math.Min(bmin.Y, omin.Y)},
		Vector2D{X: math.Max(bmax.X, omax.X), Y: math.Max(bmax.Y, omax.Y)},
	)
}

// Sanitize resets non-finite geometry to a zero box at the origin
func (b Box) Sanitize() Box {
	if b.Center.IsNaN() || b.Half.IsNaN() {
		return Box{}
	}
	return b
}
