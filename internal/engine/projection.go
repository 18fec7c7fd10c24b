package engine

// Simulation space field size.
const (
	FieldWidth  = 840.0
	FieldHeight = 545.0
)

// Project maps a simulation position onto a viewport of the given size.
// x and y are clamped to the field first so nothing is drawn off the pitch.
// The view is top down, z does not move the point.
func Project(x, y, z, viewportWidth, viewportHeight float64) (float64, float64) {
	x = clampFloat(x, 0, FieldWidth)
	y = clampFloat(y, 0, FieldHeight)
	return x / FieldWidth * viewportWidth, y / FieldHeight * viewportHeight
}
