package viewport

// Rect is an axis-aligned box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area, zero for degenerate boxes.
func (r Rect) Area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Expand grows the box by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{
		X:      r.X - margin,
		Y:      r.Y - margin,
		Width:  r.Width + 2*margin,
		Height: r.Height + 2*margin,
	}
}

// Intersect returns the overlap of two boxes.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.Width, o.X+o.Width), min(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Intersection is the fraction of target inside viewport grown by margin.
func Intersection(target, viewport Rect, margin float64) float64 {
	area := target.Area()
	if area == 0 {
		return 0
	}
	return target.Intersect(viewport.Expand(margin)).Area() / area
}
