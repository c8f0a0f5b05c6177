// server/domain/mindmap.go
package domain

type Node struct {
	ID       string  `json:"id" yaml:"id" validate:"required"`
	Title    string  `json:"title" yaml:"title"`
	Subtitle string  `json:"subtitle" yaml:"subtitle"`
	X        float64 `json:"x" yaml:"x"`
	Y        float64 `json:"y" yaml:"y"`
}

type Connection struct {
	Source string `json:"source" yaml:"source" validate:"required"`
	Target string `json:"target" yaml:"target" validate:"required"`
}

// Document is the whole mind map. Slice order is the rendering order and is
// preserved through every copy.
type Document struct {
	Nodes       []Node       `json:"nodes" yaml:"nodes" validate:"dive"`
	Connections []Connection `json:"connections" yaml:"connections" validate:"dive"`
}

// Clone returns a copy that shares no backing arrays with d. Nil slices stay nil.
func (d Document) Clone() Document {
	var out Document
	if d.Nodes != nil {
		out.Nodes = make([]Node, len(d.Nodes))
		copy(out.Nodes, d.Nodes)
	}
	if d.Connections != nil {
		out.Connections = make([]Connection, len(d.Connections))
		copy(out.Connections, d.Connections)
	}
	return out
}

// WithEmptyLists returns d with missing lists replaced by empty ones, so
// clients always receive arrays.
func (d Document) WithEmptyLists() Document {
	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	if d.Connections == nil {
		d.Connections = []Connection{}
	}
	return d
}

// DefaultDocument is the map every process starts with when no seed file is
// configured.
func DefaultDocument() Document {
	return Document{
		Nodes: []Node{
			{ID: "balance-sheet", Title: "Balance Sheet", Subtitle: "", X: 40, Y: 10},
			{ID: "purpose", Title: "What is it for?", Subtitle: "To show economic and financial data", X: 20, Y: 150},
			{ID: "importance", Title: "Importance", Subtitle: "Very important document", X: 60, Y: 150},
			{ID: "related-docs", Title: "Related Documents", Subtitle: "Stato Patrimoniale, Conto economico", X: 40, Y: 300},
		},
		Connections: []Connection{
			{Source: "balance-sheet", Target: "purpose"},
			{Source: "balance-sheet", Target: "importance"},
			{Source: "balance-sheet", Target: "related-docs"},
		},
	}
}
