package liveness

// Rect is an axis-aligned rectangle in camera preview coordinates.
// Width and Height must not be negative.
type Rect struct {
	MinX   float64 `json:"min_x" cbor:"min_x"`
	MinY   float64 `json:"min_y" cbor:"min_y"`
	Width  float64 `json:"width" cbor:"width" validate:"gte=0"`
	Height float64 `json:"height" cbor:"height" validate:"gte=0"`
}

func (r Rect) MaxX() float64 { return r.MinX + r.Width }
func (r Rect) MaxY() float64 { return r.MinY + r.Height }

// MidX returns the horizontal centre of the rectangle.
func (r Rect) MidX() float64 { return r.MinX + r.Width/2 }

// MidY returns the vertical centre of the rectangle.
func (r Rect) MidY() float64 { return r.MinY + r.Height/2 }

// Shrink reduces width and height by margin and keeps the rectangle centred,
// so a face only needs to be almost fully inside the target region.
func (r Rect) Shrink(margin float64) Rect {
	return Rect{
		MinX:   r.MinX + margin/2,
		MinY:   r.MinY + margin/2,
		Width:  r.Width - margin,
		Height: r.Height - margin,
	}
}

// ContainsPoint reports whether (x, y) lies inside r, edges included.
func (r Rect) ContainsPoint(x, y float64) bool {
	return x >= r.MinX && x <= r.MaxX() && y >= r.MinY && y <= r.MaxY()
}

// Contains reports whether all four edges of inside lie within outside.
// There is no tolerance; callers shrink or grow rectangles before calling.
func Contains(outside, inside Rect) bool {
	return inside.MinX >= outside.MinX &&
		inside.MaxX() <= outside.MaxX() &&
		inside.MinY >= outside.MinY &&
		inside.MaxY() <= outside.MaxY()
}
