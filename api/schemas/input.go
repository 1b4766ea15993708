// File: api/schemas/input.go
package schemas

// MouseEventType mirrors the CDP input event types the simulator dispatches.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton identifies which button participates in an event.
type MouseButton string

const (
	ButtonNone   MouseButton = "none"
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// MouseEventData carries one synthetic pointer event. Buttons is the standard
// bitfield of currently-pressed buttons (1 left, 2 right, 4 middle).
type MouseEventData struct {
	Type       MouseEventType
	X          float64
	Y          float64
	Button     MouseButton
	Buttons    int64
	ClickCount int64
	DeltaX     float64
	DeltaY     float64
}

// ElementGeometry is the viewport-relative bounding box of a DOM element.
type ElementGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box and whether the box is usable.
func (g ElementGeometry) Center() (x, y float64, ok bool) {
	if g.Width <= 0 || g.Height <= 0 {
		return 0, 0, false
	}
	return g.X + g.Width/2, g.Y + g.Height/2, true
}
