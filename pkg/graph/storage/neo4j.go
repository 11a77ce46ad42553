package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"

	"github.com/narrative-kg/extract/pkg/graph"
)

// Neo4jStorage implements graph.KnowledgeGraphStore against a Neo4j
// instance. Entities become (:Entity) nodes keyed by (type, canonical);
// relations become typed [:RELATES] edges carrying predicate,
// confidence, extractor and evidence.
type Neo4jStorage struct {
	driver  neo4j.Driver
	uri     string
	auth    neo4j.AuthToken
	session neo4j.Session
}

// NewNeo4jStorage creates a new Neo4j storage instance.
func NewNeo4jStorage(uri, username, password string) (*Neo4jStorage, error) {
	auth := neo4j.BasicAuth(username, password, "")
	driver, err := neo4j.NewDriver(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %v", err)
	}

	return &Neo4jStorage{
		driver: driver,
		uri:    uri,
		auth:   auth,
	}, nil
}

// Connect implements graph.KnowledgeGraphStore.
func (s *Neo4jStorage) Connect(ctx context.Context) error {
	session := s.driver.NewSession(neo4j.SessionConfig{})
	s.session = session
	return nil
}

// Close implements graph.KnowledgeGraphStore.
func (s *Neo4jStorage) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}

// StoreResult writes one document's entities and relations in a single
// write transaction. MERGE on (type, canonical) keeps re-ingestion and
// cross-document merging idempotent; EID/AID/SP are set when present.
func (s *Neo4jStorage) StoreResult(ctx context.Context, docID string, result *graph.ExtractionResult) error {
	session := s.driver.NewSession(neo4j.SessionConfig{})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		byID := make(map[string]*graph.Entity, len(result.Entities))
		for i := range result.Entities {
			ent := &result.Entities[i]
			byID[ent.ID] = ent

			params := map[string]interface{}{
				"id":            ent.ID,
				"type":          string(ent.Type),
				"canonical":     ent.Canonical,
				"aliases":       ent.AliasSlice(),
				"mention_count": ent.MentionCount,
				"eid":           ent.EID,
				"aid":           ent.AID,
				"sp":            ent.SP,
				"doc_id":        docID,
			}

			_, err := tx.Run(`
				MERGE (e:Entity {type: $type, canonical: $canonical})
				ON CREATE SET
					e.id = $id,
					e.created_at = datetime()
				SET
					e.aliases = $aliases,
					e.mention_count = coalesce(e.mention_count, 0) + $mention_count,
					e.eid = $eid,
					e.aid = $aid,
					e.sp = $sp,
					e.updated_at = datetime(),
					e.sources = coalesce(e.sources, []) + $doc_id
			`, params)
			if err != nil {
				return nil, err
			}
		}

		for _, rel := range result.Relations {
			subj, okS := byID[rel.Subj]
			obj, okO := byID[rel.Obj]
			if !okS || !okO {
				continue
			}

			evidence, err := json.Marshal(rel.Evidence)
			if err != nil {
				return nil, err
			}

			params := map[string]interface{}{
				"id":             rel.ID,
				"subj_type":      string(subj.Type),
				"subj_canonical": subj.Canonical,
				"obj_type":       string(obj.Type),
				"obj_canonical":  obj.Canonical,
				"predicate":      string(rel.Pred),
				"confidence":     rel.Confidence,
				"extractor":      string(rel.Extractor),
				"evidence":       string(evidence),
				"doc_id":         docID,
			}

			_, err = tx.Run(`
				MATCH (from:Entity {type: $subj_type, canonical: $subj_canonical})
				MATCH (to:Entity {type: $obj_type, canonical: $obj_canonical})
				MERGE (from)-[r:RELATES {predicate: $predicate}]->(to)
				ON CREATE SET
					r.id = $id,
					r.created_at = datetime()
				SET
					r.confidence = $confidence,
					r.extractor = $extractor,
					r.evidence = $evidence,
					r.doc_id = $doc_id,
					r.updated_at = datetime()
			`, params)
			if err != nil {
				return nil, err
			}
		}

		return nil, nil
	})

	return err
}

// Query runs an arbitrary read query and returns the records as maps.
func (s *Neo4jStorage) Query(ctx context.Context, query string) ([]map[string]interface{}, error) {
	result, err := s.session.Run(query, nil)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for result.Next() {
		record := result.Record()
		data := make(map[string]interface{})
		for i, key := range record.Keys {
			data[key] = record.Values[i]
		}
		results = append(results, data)
	}

	return results, nil
}

// DeleteEntity removes an entity node and all attached relations.
func (s *Neo4jStorage) DeleteEntity(ctx context.Context, entType graph.EntityType, canonical string) error {
	query := `
		MATCH (e:Entity {type: $type, canonical: $canonical})
		DETACH DELETE e
	`
	_, err := s.session.Run(query, map[string]interface{}{
		"type":      string(entType),
		"canonical": canonical,
	})
	return err
}
