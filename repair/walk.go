package repair

import "github.com/brunobiangulo/fundgraph/sparql"

// eachNode calls fn with a pointer to every node of q: triple positions,
// VALUES cells and constants inside expressions, including those in EXISTS
// groups and the solution modifiers.
func eachNode(q *sparql.Query, fn func(*sparql.Node)) {
	for i := range q.Projection {
		eachExprNode(q.Projection[i].Expr, fn)
	}
	eachGroupNode(q.Where, fn)
	for i := range q.GroupBy {
		eachExprNode(q.GroupBy[i].Expr, fn)
	}
	for _, e := range q.Having {
		eachExprNode(e, fn)
	}
	for _, c := range q.OrderBy {
		eachExprNode(c.Expr, fn)
	}
}

func eachGroupNode(g *sparql.Group, fn func(*sparql.Node)) {
	sparql.Walk(g, func(el sparql.Element) bool {
		switch e := el.(type) {
		case *sparql.TriplePattern:
			fn(&e.S)
			fn(&e.P)
			fn(&e.O)
		case *sparql.Filter:
			eachExprNode(e.Expr, fn)
		case *sparql.Bind:
			eachExprNode(e.Expr, fn)
		case *sparql.Values:
			for _, row := range e.Rows {
				for j := range row {
					if !row[j].IsZero() {
						fn(&row[j])
					}
				}
			}
		}
		return true
	})
}

func eachExprNode(e sparql.Expr, fn func(*sparql.Node)) {
	switch x := e.(type) {
	case *sparql.TermExpr:
		fn(&x.Node)
	case *sparql.BinaryExpr:
		eachExprNode(x.Left, fn)
		eachExprNode(x.Right, fn)
	case *sparql.UnaryExpr:
		eachExprNode(x.X, fn)
	case *sparql.CallExpr:
		for _, a := range x.Args {
			eachExprNode(a, fn)
		}
	case *sparql.InExpr:
		eachExprNode(x.X, fn)
		for _, a := range x.List {
			eachExprNode(a, fn)
		}
	case *sparql.ExistsExpr:
		eachGroupNode(x.Group, fn)
	}
}
