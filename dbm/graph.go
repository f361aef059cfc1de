package dbm

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// ToDot renders the stack topology as a graphviz graph: one node per
// layer, labelled with its dimension and weight norm summary, edges
// following the upward message path.
func (st *Stack) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("DBM"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	prev := "visible"
	g.AddNode("DBM", prev, map[string]string{
		"shape": "box",
		"label": fmt.Sprintf("\"visible (%d units)\"", st.Visible.NVis()),
	})
	for _, h := range st.Hidden {
		label := fmt.Sprintf("%s (%d units)", h.Name, h.Dim)
		if mc, err := h.MonitoringChannels(); err == nil {
			label += fmt.Sprintf("\\ncol norms %.3f / %.3f / %.3f", mc["col_norms_min"], mc["col_norms_mean"], mc["col_norms_max"])
		}
		name := fmt.Sprintf("%q", h.Name)
		g.AddNode("DBM", name, map[string]string{
			"shape": "box",
			"label": fmt.Sprintf("\"%s\"", label),
		})
		g.AddEdge(prev, name, true, nil)
		prev = name
	}
	return g.String()
}
