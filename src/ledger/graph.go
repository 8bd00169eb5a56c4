package ledger

import (
	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

var (
	confirmedAttr = []func(*graph.VertexProperties){
		graph.VertexAttribute("shape", "box"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("fillcolor", "palegreen"),
	}
	pendingAttr = []func(*graph.VertexProperties){
		graph.VertexAttribute("shape", "box"),
		graph.VertexAttribute("style", "filled"),
		graph.VertexAttribute("fillcolor", "lightgoldenrod"),
	}
)

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

// Graph builds the most recent `limit` transactions (all when limit <= 0) as
// an acyclic directed graph with edges pointing from a transaction to the
// transactions it references. Edges leaving the window are dropped.
func (l *Ledger) Graph(limit int) (graph.Graph[string, string], error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	window := l.state.order
	if limit > 0 && limit < len(window) {
		window = window[len(window)-limit:]
	}
	g := graph.New(graph.StringHash, graph.Directed(), graph.Acyclic())
	for _, v := range window {
		attrs := pendingAttr
		if v.confirmed {
			attrs = confirmedAttr
		}
		attrs = append(attrs[:len(attrs):len(attrs)], graph.VertexAttribute("label", shortID(v.tx.ID)))
		if err := g.AddVertex(v.tx.ID, attrs...); err != nil {
			return nil, errors.Wrapf(err, "failed adding vertex %s", v.tx.ID)
		}
	}
	for _, v := range window {
		for _, ref := range v.tx.References {
			if _, err := g.Vertex(ref); err != nil {
				continue
			}
			if err := g.AddEdge(v.tx.ID, ref); err != nil {
				return nil, errors.Wrapf(err, "failed adding edge %s -> %s", v.tx.ID, ref)
			}
		}
	}
	return g, nil
}
