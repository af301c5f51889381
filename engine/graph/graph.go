// Package graph maintains the Location/Indicator relationship graph in
// Neo4j. Ingestion records one observation per row; the API serves the
// resulting subgraph for the dashboard's relationship view.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store provides graph operations over a Neo4j driver.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a Store.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// RecordObservation merges the location and indicator nodes and bumps
// the REPORTS edge between them.
func (s *Store) RecordObservation(ctx context.Context, location, indicator, source string) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	const cypher = `
MERGE (l:Location {name: $location})
MERGE (i:Indicator {name: $indicator})
MERGE (l)-[r:REPORTS]->(i)
ON CREATE SET r.count = 1, r.source = $source
ON MATCH SET r.count = r.count + 1`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"location":  location,
		"indicator": indicator,
		"source":    source,
	})
	if err != nil {
		return fmt.Errorf("graph: record observation: %w", err)
	}
	return nil
}

// Neighborhood returns up to limit REPORTS relationships with their
// endpoint nodes, most-observed first.
func (s *Store) Neighborhood(ctx context.Context, limit int) (Neighborhood, error) {
	if limit <= 0 {
		limit = 50
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	const cypher = `
MATCH (l:Location)-[r:REPORTS]->(i:Indicator)
RETURN l.name AS location, i.name AS indicator, r.count AS count, r.source AS source
ORDER BY r.count DESC LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"limit": limit})
	if err != nil {
		return Neighborhood{}, fmt.Errorf("graph: neighborhood: %w", err)
	}

	var nb Neighborhood
	seen := make(map[string]bool)
	for result.Next(ctx) {
		rec := result.Record()
		loc := stringField(rec, "location")
		ind := stringField(rec, "indicator")
		if loc == "" || ind == "" {
			continue
		}

		locID := "loc:" + loc
		indID := "ind:" + ind
		if !seen[locID] {
			seen[locID] = true
			nb.Nodes = append(nb.Nodes, Node{ID: locID, Label: "Location", Name: loc})
		}
		if !seen[indID] {
			seen[indID] = true
			nb.Nodes = append(nb.Nodes, Node{ID: indID, Label: "Indicator", Name: ind})
		}

		edge := Edge{From: locID, To: indID, Source: stringField(rec, "source")}
		if v, ok := rec.Get("count"); ok {
			if n, ok := v.(int64); ok {
				edge.Count = n
			}
		}
		nb.Edges = append(nb.Edges, edge)
	}
	if err := result.Err(); err != nil {
		return Neighborhood{}, fmt.Errorf("graph: neighborhood rows: %w", err)
	}
	return nb, nil
}

func stringField(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
