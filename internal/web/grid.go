package web

// Link is a hyperlink or, when Method is "post", a one-button form.
type Link struct {
	Href    string
	Text    string
	Method  string
	Confirm string
	Params  map[string]string // hidden fields for post links
}

// Column describes one grid column. Value renders the cell text; Action, when
// set, turns the cell into a link.
type Column[T any] struct {
	Header  string
	SortKey string
	Value   func(T) string
	Action  func(T) *Link
}

// Header is a rendered column heading.
type Header struct {
	Text string
	Href string
}

// Cell is a rendered grid cell.
type Cell struct {
	Text string
	Link *Link
}

// Grid is a table ready for the grid template.
type Grid struct {
	Headers []Header
	Rows    [][]Cell
}

// BuildGrid evaluates cols against every row.
func BuildGrid[T any](cols []Column[T], rows []T) Grid {
	g := Grid{
		Headers: make([]Header, len(cols)),
		Rows:    make([][]Cell, 0, len(rows)),
	}
	for i, c := range cols {
		g.Headers[i] = Header{Text: c.Header}
	}
	for _, row := range rows {
		cells := make([]Cell, len(cols))
		for i, c := range cols {
			if c.Value != nil {
				cells[i].Text = c.Value(row)
			}
			if c.Action != nil {
				cells[i].Link = c.Action(row)
			}
		}
		g.Rows = append(g.Rows, cells)
	}
	return g
}

// SortableGrid is BuildGrid with heading links for columns that have a
// SortKey. href maps a sort key to the heading URL.
func SortableGrid[T any](cols []Column[T], rows []T, href func(key string) string) Grid {
	g := BuildGrid(cols, rows)
	for i, c := range cols {
		if c.SortKey != "" {
			g.Headers[i].Href = href(c.SortKey)
		}
	}
	return g
}
