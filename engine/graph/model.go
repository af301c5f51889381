package graph

// Node is one graph vertex: a location or an indicator.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"` // "Location" or "Indicator"
	Name  string `json:"name"`
}

// Edge is a REPORTS relationship: a location reports an indicator, with
// an observation count and the contributing source tag.
type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Count  int64  `json:"count"`
	Source string `json:"source"`
}

// Neighborhood is the subgraph returned to the dashboard.
type Neighborhood struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}
