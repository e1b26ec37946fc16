package relationships

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

// DefaultMaxDepth bounds join path length in hops.
const DefaultMaxDepth = 3

// MaxDepthLimit is the largest max_depth accepted from callers.
const MaxDepthLimit = 6

// maxPathsPerSearch caps how many equal-length paths a single search returns.
const maxPathsPerSearch = 10

// edge is a directed view of a relationship from one table to a neighbor.
type edge struct {
	to  string
	rel models.Relationship
}

// TableGraph is an undirected graph of tables connected by relationships.
// Nodes are keyed by lower-cased "schema.table".
type TableGraph struct {
	// Adjacency list: table -> outgoing edges (both directions are inserted)
	edges map[string][]edge
	// All unique tables in the graph, lower-cased key -> display name
	tables map[string]string
}

// NewTableGraph creates a new empty table graph.
func NewTableGraph() *TableGraph {
	return &TableGraph{
		edges:  make(map[string][]edge),
		tables: make(map[string]string),
	}
}

// NewTableGraphFromSchema builds a graph containing every table of the schema
// and every relationship between them.
func NewTableGraphFromSchema(schema *models.DatabaseSchema, rels []models.Relationship) *TableGraph {
	g := NewTableGraph()
	if schema != nil {
		for _, t := range schema.AllTables() {
			g.AddTable(t.Schema, t.Name)
		}
	}
	for _, rel := range rels {
		g.AddRelationship(rel)
	}
	return g
}

func nodeKey(schema, table string) string {
	return strings.ToLower(models.QualifiedName(schema, table))
}

// AddRelationship inserts the relationship and its reverse.
func (g *TableGraph) AddRelationship(rel models.Relationship) {
	source := nodeKey(rel.SourceSchema, rel.SourceTable)
	target := nodeKey(rel.TargetSchema, rel.TargetTable)

	g.AddTable(rel.SourceSchema, rel.SourceTable)
	g.AddTable(rel.TargetSchema, rel.TargetTable)

	g.edges[source] = append(g.edges[source], edge{to: target, rel: rel})
	g.edges[target] = append(g.edges[target], edge{to: source, rel: rel.Reverse()})
}

// AddTable adds a table to the graph without any edges.
func (g *TableGraph) AddTable(schema, table string) {
	key := nodeKey(schema, table)
	if _, ok := g.tables[key]; !ok {
		g.tables[key] = models.QualifiedName(schema, table)
	}
}

// resolve maps a requested name ("orders" or "public.orders") to a node key.
// Bare names match the first node, in sorted order, whose table part matches.
func (g *TableGraph) resolve(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", false
	}
	if _, ok := g.tables[key]; ok {
		return key, true
	}
	if strings.Contains(key, ".") {
		return "", false
	}

	var matches []string
	for k := range g.tables {
		if _, table := models.SplitQualifiedName(k); table == key {
			matches = append(matches, k)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// JoinPath is an ordered sequence of hops connecting two tables.
type JoinPath struct {
	Tables []string              `json:"tables"`
	Hops   []models.Relationship `json:"hops"`
	Length int                   `json:"length"`
	SQL    string                `json:"sql"`
}

// FindJoinPaths connects the first two requested tables using breadth-first
// search bounded by maxDepth hops (DefaultMaxDepth when <= 0). All discovered
// paths of the minimal hop count are returned. Additional names beyond the
// first two are accepted but not used. Unknown names or no path yield an
// empty result.
func FindJoinPaths(tableNames []string, rels []models.Relationship, maxDepth int) []JoinPath {
	g := NewTableGraph()
	for _, rel := range rels {
		g.AddRelationship(rel)
	}
	return g.FindJoinPaths(tableNames, maxDepth)
}

// FindJoinPaths runs the join path search over this graph.
func (g *TableGraph) FindJoinPaths(tableNames []string, maxDepth int) []JoinPath {
	if len(tableNames) < 2 {
		return []JoinPath{}
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	start, ok := g.resolve(tableNames[0])
	if !ok {
		return []JoinPath{}
	}
	goal, ok := g.resolve(tableNames[1])
	if !ok || start == goal {
		return []JoinPath{}
	}

	type partial struct {
		nodes []string
		hops  []models.Relationship
	}

	var found []JoinPath
	queue := []partial{{nodes: []string{start}}}
	// reached holds the hop count at which each table was first reached. A
	// table is only re-entered at that same depth, so every minimal path is
	// kept without enumerating longer detours.
	reached := map[string]int{start: 0}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		depth := len(current.hops)
		// Paths longer than the shortest one found can never be minimal.
		if len(found) > 0 && depth >= found[0].Length {
			continue
		}
		if depth >= maxDepth {
			continue
		}

		last := current.nodes[len(current.nodes)-1]
		for _, e := range g.edges[last] {
			if d, seen := reached[e.to]; seen && d < depth+1 {
				continue
			}
			reached[e.to] = depth + 1
			nodes := append(append([]string(nil), current.nodes...), e.to)
			hops := append(append([]models.Relationship(nil), current.hops...), e.rel)

			if e.to == goal {
				if len(found) < maxPathsPerSearch {
					found = append(found, g.newJoinPath(nodes, hops))
				}
				continue
			}
			queue = append(queue, partial{nodes: nodes, hops: hops})
		}
	}

	if found == nil {
		return []JoinPath{}
	}
	return found
}

func (g *TableGraph) newJoinPath(nodes []string, hops []models.Relationship) JoinPath {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = g.tables[n]
	}
	return JoinPath{
		Tables: names,
		Hops:   hops,
		Length: len(hops),
		SQL:    renderJoinSQL(names[0], hops),
	}
}

// renderJoinSQL renders "FROM a JOIN b ON a.x = b.y ..." for the hop list.
func renderJoinSQL(from string, hops []models.Relationship) string {
	var b strings.Builder
	b.WriteString("FROM ")
	b.WriteString(from)
	for _, hop := range hops {
		source := models.QualifiedName(hop.SourceSchema, hop.SourceTable)
		target := models.QualifiedName(hop.TargetSchema, hop.TargetTable)
		b.WriteString(" JOIN ")
		b.WriteString(target)
		b.WriteString(" ON ")
		for i := range hop.SourceColumns {
			if i >= len(hop.TargetColumns) {
				break
			}
			if i > 0 {
				b.WriteString(" AND ")
			}
			fmt.Fprintf(&b, "%s.%s = %s.%s", source, hop.SourceColumns[i], target, hop.TargetColumns[i])
		}
	}
	return b.String()
}

// ConnectedComponent represents a group of tables connected by relationships.
type ConnectedComponent struct {
	Tables []string `json:"tables"`
	Size   int      `json:"size"`
}

// FindConnectedComponents identifies all connected components in the graph using DFS.
// Returns components with more than one table sorted by size (largest first)
// and the island tables that have no relationships at all.
func (g *TableGraph) FindConnectedComponents() ([]ConnectedComponent, []string) {
	visited := make(map[string]bool)
	var components []ConnectedComponent

	keys := make([]string, 0, len(g.tables))
	for k := range g.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, table := range keys {
		if !visited[table] {
			component := g.dfs(table, visited)
			components = append(components, ConnectedComponent{
				Tables: component,
				Size:   len(component),
			})
		}
	}

	var nonIslands []ConnectedComponent
	var islands []string
	for _, comp := range components {
		if comp.Size == 1 {
			islands = append(islands, comp.Tables[0])
		} else {
			nonIslands = append(nonIslands, comp)
		}
	}

	sort.SliceStable(nonIslands, func(i, j int) bool {
		return nonIslands[i].Size > nonIslands[j].Size
	})

	return nonIslands, islands
}

// dfs performs depth-first search starting from a table.
// Returns the display names of all tables in the connected component.
func (g *TableGraph) dfs(start string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}

		visited[current] = true
		component = append(component, g.tables[current])

		for _, e := range g.edges[current] {
			if !visited[e.to] {
				stack = append(stack, e.to)
			}
		}
	}

	sort.Strings(component)
	return component
}

// LogConnectivity logs the connectivity analysis results.
func LogConnectivity(
	relationshipCount int,
	components []ConnectedComponent,
	islands []string,
	logger *zap.Logger,
) {
	logger.Debug("Graph connectivity analysis",
		zap.Int("relationships", relationshipCount),
		zap.Int("components", len(components)),
		zap.Int("islands", len(islands)),
	)
	for i, comp := range components {
		preview := comp.Tables
		if len(preview) > 5 {
			preview = preview[:5]
		}
		logger.Debug("Connected component",
			zap.Int("index", i+1),
			zap.Int("size", comp.Size),
			zap.Strings("tables", preview),
		)
	}
}
