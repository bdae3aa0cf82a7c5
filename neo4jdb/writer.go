package neo4jdb

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/brunobiangulo/nasgraph/graph"
	"github.com/brunobiangulo/nasgraph/model"
)

var schema = []string{
	`CREATE CONSTRAINT nas_state_key IF NOT EXISTS FOR (s:State) REQUIRE (s.side, s.name) IS UNIQUE`,
	`CREATE CONSTRAINT nas_element_name IF NOT EXISTS FOR (e:NetworkElement) REQUIRE e.name IS UNIQUE`,
	`CREATE INDEX nas_state_run IF NOT EXISTS FOR (s:State) ON (s.run_id)`,
}

var relType = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// params is the UNWIND payload of one graph snapshot.
type params struct {
	states       []map[string]any
	transitions  []map[string]any
	wildcards    []map[string]any
	partOf       []map[string]any
	elements     []map[string]any
	involvements []map[string]any
	// relationships grouped by type; Cypher cannot parameterise edge types
	relationships map[string][]map[string]any
}

func buildParams(runID string, g *graph.Graph) params {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	p := params{relationships: make(map[string][]map[string]any)}

	for _, side := range model.Sides {
		for _, s := range g.States(side) {
			p.states = append(p.states, map[string]any{
				"side":         string(side),
				"name":         s.Name,
				"kind":         string(s.Kind),
				"stub":         s.Stub,
				"aliases":      nonNil(s.Aliases),
				"descriptions": nonNil(s.Descriptions),
				"run_id":       runID,
				"synced_at":    now,
			})
		}
		for _, t := range g.Transitions(side) {
			row := map[string]any{
				"side":                string(side),
				"from":                t.From,
				"to":                  t.To,
				"message":             t.Message,
				"wildcard":            t.Wildcard,
				"corroboration_count": int64(t.CorroborationCount),
				"chunk_ids":           nonNil(t.ChunkIDs),
			}
			if t.Wildcard {
				p.wildcards = append(p.wildcards, row)
			} else {
				p.transitions = append(p.transitions, row)
			}
		}
		for _, l := range g.PartOf(side) {
			p.partOf = append(p.partOf, map[string]any{
				"side":   string(side),
				"child":  l.Child,
				"parent": l.Parent,
			})
		}
	}
	for _, e := range g.Elements() {
		p.elements = append(p.elements, map[string]any{
			"name":    e.Name,
			"type":    e.Type,
			"aliases": nonNil(e.Aliases),
			"run_id":  runID,
		})
	}
	for _, r := range g.Relationships() {
		typ := r.Type
		if !relType.MatchString(typ) {
			typ = graph.RelInteractsWith
		}
		p.relationships[typ] = append(p.relationships[typ], map[string]any{
			"from":      r.From,
			"to":        r.To,
			"texts":     nonNil(r.Texts),
			"chunk_ids": nonNil(r.ChunkIDs),
		})
	}
	for _, inv := range g.Involvements() {
		p.involvements = append(p.involvements, map[string]any{
			"element": inv.Element,
			"role":    inv.Role,
			"side":    string(inv.Edge.Side),
			"from":    inv.Edge.From,
			"message": inv.Edge.Message,
			"to":      inv.Edge.To,
		})
	}
	return p
}

// WriteGraph replaces the graph held in Neo4j with g. Schema creation is
// best effort; the snapshot itself is written in one transaction.
func (c *Client) WriteGraph(ctx context.Context, runID string, g *graph.Graph) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	start := time.Now()
	p := buildParams(runID, g)

	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	for _, stmt := range schema {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			slog.Warn("neo4jdb: schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, q := range p.statements() {
			res, err := tx.Run(ctx, q.cypher, q.args)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", q.name, err)
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", q.name, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4jdb: write graph: %w", err)
	}
	slog.Info("neo4jdb: graph written",
		"run", runID,
		"states", len(p.states),
		"transitions", len(p.transitions),
		"wildcards", len(p.wildcards),
		"elements", len(p.elements),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

type statement struct {
	name   string
	cypher string
	args   map[string]any
}

// statements lists the write transaction in order: clear, nodes, edges.
func (p params) statements() []statement {
	out := []statement{
		{name: "clear", cypher: `MATCH (n) WHERE n:State OR n:NetworkElement DETACH DELETE n`},
	}
	add := func(name, cypher, key string, rows []map[string]any) {
		if len(rows) == 0 {
			return
		}
		out = append(out, statement{name: name, cypher: cypher, args: map[string]any{key: rows}})
	}
	add("states", `
UNWIND $states AS s
MERGE (n:State {side: s.side, name: s.name})
SET n += s
`, "states", p.states)
	add("elements", `
UNWIND $elements AS e
MERGE (n:NetworkElement {name: e.name})
SET n += e
`, "elements", p.elements)
	add("transitions", `
UNWIND $transitions AS t
MATCH (a:State {side: t.side, name: t.from})
MATCH (b:State {side: t.side, name: t.to})
MERGE (a)-[r:TRANSITIONS_TO {message: t.message}]->(b)
SET r.corroboration_count = t.corroboration_count, r.wildcard = false, r.chunk_ids = t.chunk_ids
`, "transitions", p.transitions)
	add("wildcards", `
UNWIND $wildcards AS t
MATCH (b:State {side: t.side, name: t.to})
MERGE (a:State {side: t.side, name: 'ANY'})
ON CREATE SET a.kind = 'WILDCARD'
MERGE (a)-[r:TRANSITIONS_TO {message: t.message}]->(b)
SET r.corroboration_count = t.corroboration_count, r.wildcard = true, r.chunk_ids = t.chunk_ids
`, "wildcards", p.wildcards)
	add("part_of", `
UNWIND $links AS l
MATCH (c:State {side: l.side, name: l.child})
MATCH (p:State {side: l.side, name: l.parent})
MERGE (c)-[:PART_OF]->(p)
`, "links", p.partOf)

	types := make([]string, 0, len(p.relationships))
	for typ := range p.relationships {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		add("relationships "+typ, fmt.Sprintf(`
UNWIND $rels AS r
MATCH (a:NetworkElement {name: r.from})
MATCH (b:NetworkElement {name: r.to})
MERGE (a)-[e:%s]->(b)
SET e.texts = r.texts, e.chunk_ids = r.chunk_ids
`, typ), "rels", p.relationships[typ])
	}

	add("involvements", `
UNWIND $inv AS i
MATCH (e:NetworkElement {name: i.element})
MATCH (b:State {side: i.side, name: i.to})
MERGE (e)-[r:INVOLVED_IN {role: i.role, message: i.message, from: i.from}]->(b)
`, "inv", p.involvements)
	return out
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
