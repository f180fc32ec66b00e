// pkg/physics/collision.go
package physics

import "math"

// epsilon below which a 2x2 determinant is treated as parallel lines
const epsilon = 1e-12

// Outcodes for Cohen-Sutherland style clipping. A point lying exactly on an
// edge counts as outside that edge so that touching is never penetration.
const (
	outLowX = 1 << iota
	outHighX
	outLowY
	outHighY
)

// LineIntersection intersects segment a1-a2 with segment b1-b2 and returns
// the parametric position of the crossing along each of them.
// Parallel and degenerate segments report found == false.
func LineIntersection(a1, a2, b1, b2 Vector2D) (ratioA, ratioB float64, found bool) {
	da := a2.Sub(a1)
	db := b2.Sub(b1)
	det := da.Cross(db)
	if math.Abs(det) < epsilon {
		return 0, 0, false
	}

	diff := b1.Sub(a1)
	ratioA = diff.Cross(db) / det
	ratioB = diff.Cross(da) / det
	if ratioA < 0 || ratioA > 1 || ratioB < 0 || ratioB > 1 {
		return ratioA, ratioB, false
	}
	return ratioA, ratioB, true
}

// LineIntersectionPoint returns the absolute crossing point of two segments
func LineIntersectionPoint(a1, a2, b1, b2 Vector2D) (Vector2D, bool) {
	ratio, _, found := LineIntersection(a1, a2, b1, b2)
	if !found {
		return Vector2D{}, false
	}
	return a1.Lerp(a2, ratio), true
}

// BoxCollision tests two static boxes for overlap. The returned fix is the
// minimum translation that moves a out of b, along the axis of smallest
// penetration (ties resolve on x). Zero-area boxes never collide.
func BoxCollision(a, b Box) (fix Vector2D, found bool) {
	if a.Half.X == 0 || a.Half.Y == 0 || b.Half.X == 0 || b.Half.Y == 0 {
		return Vector2D{}, false
	}

	d := a.Center.Sub(b.Center)
	px := a.Half.X + b.Half.X - math.Abs(d.X)
	py := a.Half.Y + b.Half.Y - math.Abs(d.Y)
	if px <= 0 || py <= 0 {
		return Vector2D{}, false
	}

	if px <= py {
		return Vector2D{X: side(d.X) * px}, true
	}
	return Vector2D{Y: side(d.Y) * py}, true
}

// side picks the push direction; coincident centers push toward positive.
func side(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// LineHit describes where a segment enters a box
type LineHit struct {
	Found bool
	// Inside is set when both endpoints lie strictly inside the box.
	Inside bool
	Ratio  float64
	// Normal is the outward normal of the crossed edge, zero when the
	// segment starts inside.
	Normal Vector2D
}

func outcode(p, min, max Vector2D) int {
	code := 0
	if p.X <= min.X {
		code |= outLowX
	} else if p.X >= max.X {
		code |= outHighX
	}
	if p.Y <= min.Y {
		code |= outLowY
	} else if p.Y >= max.Y {
		code |= outHighY
	}
	return code
}

// BoxLineCollision clips the segment p1-p2 against box
func BoxLineCollision(box Box, p1, p2 Vector2D) LineHit {
	min, max := box.Min(), box.Max()
	c1 := outcode(p1, min, max)
	c2 := outcode(p2, min, max)

	if c1 == 0 {
		return LineHit{Found: true, Inside: c2 == 0}
	}
	// both endpoints beyond the same edge
	if c1&c2 != 0 {
		return LineHit{}
	}

	d := p2.Sub(p1)
	hit := LineHit{Ratio: -1}
	try := func(t float64, normal Vector2D, onEdge func(Vector2D) bool) {
		if t < 0 || t > 1 || (hit.Found && t <= hit.Ratio) {
			return
		}
		if onEdge(p1.Add(d.Scale(t))) {
			hit = LineHit{Found: true, Ratio: t, Normal: normal}
		}
	}
	withinY := func(p Vector2D) bool { return p.Y >= min.Y && p.Y <= max.Y }
	withinX := func(p Vector2D) bool { return p.X >= min.X && p.X <= max.X }

	if c1&outLowX != 0 && d.X > 0 {
		try((min.X-p1.X)/d.X, Vector2D{X: -1}, withinY)
	}
	if c1&outHighX != 0 && d.X < 0 {
		try((max.X-p1.X)/d.X, Vector2D{X: 1}, withinY)
	}
	if c1&outLowY != 0 && d.Y > 0 {
		try((min.Y-p1.Y)/d.Y, Vector2D{Y: -1}, withinX)
	}
	if c1&outHighY != 0 && d.Y < 0 {
		try((max.Y-p1.Y)/d.Y, Vector2D{Y: 1}, withinX)
	}

	if !hit.Found {
		return LineHit{}
	}
	return hit
}

// BoxLinePoint is BoxLineCollision that also reports the absolute crossing point
func BoxLinePoint(box Box, p1, p2 Vector2D) (LineHit, Vector2D) {
	hit := BoxLineCollision(box, p1, p2)
	if !hit.Found {
		return hit, p2
	}
	return hit, p1.Lerp(p2, hit.Ratio)
}

// Sweep is a box moving from Start to End during one tick
type Sweep struct {
	Start  Vector2D
	End    Vector2D
	Half   Vector2D
	Static bool
}

// Motion returns the displacement over the tick
func (s Sweep) Motion() Vector2D {
	return s.End.Sub(s.Start)
}

// StartBox returns the box at the beginning of the sweep
func (s Sweep) StartBox() Box {
	return Box{Center: s.Start, Half: s.Half}
}

// EndBox returns the box at the end of the sweep
func (s Sweep) EndBox() Box {
	return Box{Center: s.End, Half: s.Half}
}

// Bounds returns the union of the start and end boxes
func (s Sweep) Bounds() Box {
	return s.StartBox().Union(s.EndBox())
}

// SweepResult is the outcome of a continuous box/box test
type SweepResult struct {
	Found bool
	// Ratio in [0,1] at which the boxes first touch.
	Ratio float64
	// A and B are the resolved centers of both boxes.
	A, B Vector2D
	// Normal is the contact normal as seen by A, pointing from B to A.
	Normal Vector2D
	// Embedded is set when the boxes already overlapped at the start.
	Embedded bool
	// Slide is set when the anti-sticking correction was applied.
	Slide bool
}

// Fix returns the displacement applied to A
func (r SweepResult) Fix(a Sweep) Vector2D {
	if r.Embedded {
		return r.A.Sub(a.Start)
	}
	return r.A.Sub(a.End)
}

// BoxSweepCollision finds the first contact between two moving boxes by
// sweeping the relative motion of a as a point against the Minkowski sum of
// both boxes centered on b. The remaining motion along the contact normal is
// cancelled and the correction is split between the dynamic bodies.
func BoxSweepCollision(a, b Sweep) SweepResult {
	res := SweepResult{A: a.End, B: b.End}

	if fix, ok := BoxCollision(a.StartBox(), b.StartBox()); ok {
		res.Found = true
		res.Embedded = true
		res.Normal = Vector2D{X: Sign(fix.X), Y: Sign(fix.Y)}
		res.A, res.B = distribute(a.Start, b.Start, fix, a.Static, b.Static)
		return res
	}

	rel := a.Motion().Sub(b.Motion())
	sum := Box{Center: b.Start, Half: a.Half.Add(b.Half)}
	hit := BoxLineCollision(sum, a.Start, a.Start.Add(rel))
	if !hit.Found {
		return res
	}

	res.Found = true
	res.Ratio = hit.Ratio
	res.Normal = hit.Normal
	axis := hit.Normal.Mul(hit.Normal)
	fix := rel.Scale(1 - hit.Ratio).Mul(axis).Neg()
	res.A, res.B = distribute(a.End, b.End, fix, a.Static, b.Static)
	return res
}

// BoxSweepSlideCollision is BoxSweepCollision with an anti-sticking
// correction: when both dynamic bodies travel the same way along the contact
// axis, the leading body keeps its end position and the trailing one keeps
// its end position shifted by the combined half extents along the axis
// orthogonal to the contact, away from the leader (positive when level).
// The result is an approximation tuned for feel, not a physical response.
func BoxSweepSlideCollision(a, b Sweep) SweepResult {
	res := BoxSweepCollision(a, b)
	if !res.Found || res.Embedded || a.Static || b.Static {
		return res
	}

	axis := res.Normal.Mul(res.Normal)
	va := a.Motion().Dot(axis)
	vb := b.Motion().Dot(axis)
	if va*vb <= 0 {
		return res
	}

	ortho := Vector2D{X: 1 - axis.X, Y: 1 - axis.Y}
	combined := a.Half.Add(b.Half).Mul(ortho)
	if res.Normal.Dot(a.Motion()) > 0 {
		res.A = a.End
		res.B = sideStep(b.End, a.End, combined, ortho)
	} else {
		res.B = b.End
		res.A = sideStep(a.End, b.End, combined, ortho)
	}
	res.Slide = true
	return res
}

// sideStep moves trailer by combined along ortho, away from leader
func sideStep(trailer, leader, combined, ortho Vector2D) Vector2D {
	dir := 1.0
	if trailer.Sub(leader).Dot(ortho) < 0 {
		dir = -1
	}
	return trailer.Add(combined.Scale(dir))
}

// distribute applies fix to a and its opposite to b, split between
// dynamic bodies.
func distribute(a, b, fix Vector2D, aStatic, bStatic bool) (Vector2D, Vector2D) {
	switch {
	case aStatic && bStatic:
		return a, b
	case aStatic:
		return a, b.Sub(fix)
	case bStatic:
		return a.Add(fix), b
	default:
		half := fix.Scale(0.5)
		return a.Add(half), b.Sub(half)
	}
}
