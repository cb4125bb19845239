package models

// Point is a position on the drawing surface in CSS pixels
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Stroke is one committed line segment. Strokes are never mutated once created.
type Stroke struct {
	From   Point   `json:"from" msgpack:"from"`
	To     Point   `json:"to" msgpack:"to"`
	Color  string  `json:"color" msgpack:"color"`
	Size   float64 `json:"size" msgpack:"size"`
	Author string  `json:"username,omitempty" msgpack:"username"`
}

// MediaStatus is the advisory mic/camera state a participant broadcasts
type MediaStatus struct {
	Mic bool `json:"mic"`
	Cam bool `json:"cam"`
}
