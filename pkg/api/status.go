package api

type (
	// Status is the visual state a node reports about itself
	Status struct {
		Fill  string `json:"fill,omitempty"`
		Shape string `json:"shape,omitempty"`
		Text  string `json:"text,omitempty"`
	}
)

const (
	FillRed    = "red"
	FillGreen  = "green"
	FillYellow = "yellow"
	FillBlue   = "blue"
	FillGrey   = "grey"

	ShapeDot  = "dot"
	ShapeRing = "ring"
)

// IsZero reports whether the status clears the node's indicator
func (s Status) IsZero() bool {
	return s == Status{}
}
