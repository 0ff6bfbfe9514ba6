package geom

import "math"

// Polygon is a closed path; the last vertex connects back to the first.
type Polygon []Vec

// Contains reports whether p lies inside the polygon (even-odd rule).
func (pg Polygon) Contains(p Vec) bool {
	n := len(pg)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pg[i], pg[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Segments returns the edges of the closed path.
func (pg Polygon) Segments() []Segment {
	n := len(pg)
	if n < 2 {
		return nil
	}
	out := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Segment{A: pg[i], B: pg[(i+1)%n]})
	}
	return out
}

// Area returns the signed area; positive for counter-clockwise paths.
func (pg Polygon) Area() float64 {
	var sum float64
	n := len(pg)
	for i := 0; i < n; i++ {
		sum += pg[i].Cross(pg[(i+1)%n])
	}
	return sum / 2
}

// Bounds returns the axis-aligned bounding box.
func (pg Polygon) Bounds() Rect {
	if len(pg) == 0 {
		return Rect{}
	}
	r := Rect{Min: pg[0], Max: pg[0]}
	for _, v := range pg[1:] {
		r.Min.X = math.Min(r.Min.X, v.X)
		r.Min.Y = math.Min(r.Min.Y, v.Y)
		r.Max.X = math.Max(r.Max.X, v.X)
		r.Max.Y = math.Max(r.Max.Y, v.Y)
	}
	return r
}

// Corner is a vertex of a rounded polygon, rounded with the given radius.
type Corner struct {
	P      Vec
	Radius float64
}

// RoundedPolygon builds a closed path through corners, replacing each
// corner with a tangent arc of its radius tessellated into steps segments.
// Returns false if an edge is too short for the arcs at its ends, or the
// input is degenerate.
func RoundedPolygon(corners []Corner, steps int) (Polygon, bool) {
	n := len(corners)
	if n < 3 || steps < 1 {
		return nil, false
	}

	type arc struct {
		t1, t2, c   Vec
		inset, r    float64
		start, span float64
	}
	arcs := make([]arc, n)
	for i, cn := range corners {
		prev := corners[(i+n-1)%n].P
		next := corners[(i+1)%n].P
		d1 := prev.Sub(cn.P).Norm()
		d2 := next.Sub(cn.P).Norm()
		cos := math.Max(-1, math.Min(1, d1.Dot(d2)))
		theta := math.Acos(cos)
		if theta < 1e-9 || math.Pi-theta < 1e-9 || cn.Radius <= 0 {
			// Straight or reversed corner: no rounding.
			arcs[i] = arc{t1: cn.P, t2: cn.P}
			continue
		}
		t := cn.Radius / math.Tan(theta/2)
		bis := d1.Add(d2).Norm()
		c := cn.P.Add(bis.Scale(cn.Radius / math.Sin(theta/2)))
		t1 := cn.P.Add(d1.Scale(t))
		t2 := cn.P.Add(d2.Scale(t))
		a1 := math.Atan2(t1.Y-c.Y, t1.X-c.X)
		a2 := math.Atan2(t2.Y-c.Y, t2.X-c.X)
		span := a2 - a1
		for span > math.Pi {
			span -= 2 * math.Pi
		}
		for span < -math.Pi {
			span += 2 * math.Pi
		}
		arcs[i] = arc{t1: t1, t2: t2, c: c, inset: t, r: cn.Radius, start: a1, span: span}
	}

	for i := range corners {
		j := (i + 1) % n
		edge := corners[j].P.Sub(corners[i].P).Len()
		if edge == 0 || arcs[i].inset+arcs[j].inset > edge+1e-9 {
			return nil, false
		}
	}

	out := make(Polygon, 0, n*(steps+1))
	for _, a := range arcs {
		if a.r == 0 {
			out = append(out, a.t1)
			continue
		}
		for s := 0; s <= steps; s++ {
			ang := a.start + a.span*float64(s)/float64(steps)
			out = append(out, Vec{a.c.X + a.r*math.Cos(ang), a.c.Y + a.r*math.Sin(ang)})
		}
	}
	return dedupe(out), true
}

// dedupe drops consecutive duplicate vertices, including the wrap-around.
func dedupe(pg Polygon) Polygon {
	out := pg[:0]
	for _, v := range pg {
		if len(out) > 0 && out[len(out)-1].Near(v, 1e-9) {
			continue
		}
		out = append(out, v)
	}
	for len(out) > 1 && out[0].Near(out[len(out)-1], 1e-9) {
		out = out[:len(out)-1]
	}
	return out
}
