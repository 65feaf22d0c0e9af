package taxonomy

// IndentStep is the per-level indentation, in pixels, of rendered rows.
const IndentStep = 16

// Row is one visible node in the pre-order rendering of the tree.
type Row struct {
	Node   Node
	Depth  int
	Open   bool // branches only
	Indent int
}

// IsLeaf reports whether the row is selectable.
func (r Row) IsLeaf() bool {
	_, ok := r.Node.(*Leaf)
	return ok
}

// Walk visits every node in pre-order with its depth.
func Walk(nodes []Node, fn func(n Node, depth int)) {
	walk(nodes, 0, fn)
}

func walk(nodes []Node, depth int, fn func(Node, int)) {
	for _, n := range nodes {
		fn(n, depth)
		if b, ok := n.(*Branch); ok {
			walk(b.Children, depth+1, fn)
		}
	}
}

// Flatten returns the visible rows in pre-order. A branch's children are
// visible only while isOpen reports the branch open.
func (t *Taxonomy) Flatten(isOpen func(id int) bool) []Row {
	var rows []Row
	var visit func(nodes []Node, depth int)
	visit = func(nodes []Node, depth int) {
		for _, n := range nodes {
			switch v := n.(type) {
			case *Leaf:
				rows = append(rows, Row{Node: v, Depth: depth, Indent: (depth + 1) * IndentStep})
			case *Branch:
				open := isOpen(v.ID)
				rows = append(rows, Row{Node: v, Depth: depth, Open: open, Indent: depth * IndentStep})
				if open {
					visit(v.Children, depth+1)
				}
			}
		}
	}
	visit(t.roots, 0)
	return rows
}
