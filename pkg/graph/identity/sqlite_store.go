package identity

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/narrative-kg/extract/pkg/graph"
)

// Store persists a Registry's sense/AID tables to a SQLite file so EID/
// AID/SP allocations survive process restarts (spec.md §4.11, §5
// "initialized at startup from the persisted store, ... checkpointed
// periodically").
type Store struct {
	db     *sql.DB
	logger *logrus.Entry
}

// OpenStore opens (creating if absent) a SQLite-backed identity store at
// path. An empty path opens an in-memory database, useful for tests.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open identity store")
	}
	s := &Store{db: db, logger: logrus.WithField("component", "C11.store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS senses (
			canonical TEXT NOT NULL,
			eid INTEGER NOT NULL,
			type TEXT NOT NULL,
			sp TEXT NOT NULL,
			profile_json TEXT NOT NULL,
			PRIMARY KEY (canonical, eid)
		)`,
		`CREATE TABLE IF NOT EXISTS aliases (
			surface TEXT NOT NULL,
			eid INTEGER NOT NULL,
			aid INTEGER NOT NULL,
			PRIMARY KEY (surface, eid)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "migrate identity store")
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// profileRow is the JSON-serializable shape of a stored profile
// snapshot: graph.EntityProfile's set fields (map[string]struct{})
// aren't directly JSON-friendly, so they round-trip as string slices.
type profileRow struct {
	Canonical         string   `json:"canonical"`
	MentionCount      int      `json:"mention_count"`
	Titles            []string `json:"titles"`
	Descriptors       []string `json:"descriptors"`
	MaleVotes         int      `json:"male_votes"`
	FemaleVotes       int      `json:"female_votes"`
	PluralVotes       int      `json:"plural_votes"`
	CoOccurringPlaces []string `json:"co_places"`
	CoOccurringOrgs   []string `json:"co_orgs"`
}

// Load hydrates a fresh Registry from the persisted tables.
func (s *Store) Load() (*Registry, error) {
	r := NewRegistry()

	rows, err := s.db.Query(`SELECT canonical, eid, type, sp, profile_json FROM senses`)
	if err != nil {
		return nil, errors.Wrap(err, "load senses")
	}
	defer rows.Close()

	maxEID := 0
	for rows.Next() {
		var canonical, entType, spJSON, profileJSON string
		var eid int
		if err := rows.Scan(&canonical, &eid, &entType, &spJSON, &profileJSON); err != nil {
			return nil, errors.Wrap(err, "scan sense row")
		}
		var sp []int
		if err := json.Unmarshal([]byte(spJSON), &sp); err != nil {
			return nil, errors.Wrap(err, "unmarshal sense path")
		}
		var pr profileRow
		if err := json.Unmarshal([]byte(profileJSON), &pr); err != nil {
			return nil, errors.Wrap(err, "unmarshal profile snapshot")
		}
		sense := &Sense{EID: eid, Type: graph.EntityType(entType), SP: sp, Profile: profileFromRow(pr)}
		r.senses[strings.ToLower(canonical)] = append(r.senses[strings.ToLower(canonical)], sense)
		if eid > maxEID {
			maxEID = eid
		}
	}
	r.nextEID = maxEID

	aliasRows, err := s.db.Query(`SELECT surface, eid, aid FROM aliases`)
	if err != nil {
		return nil, errors.Wrap(err, "load aliases")
	}
	defer aliasRows.Close()

	maxAID := 0
	for aliasRows.Next() {
		var surface string
		var eid, aid int
		if err := aliasRows.Scan(&surface, &eid, &aid); err != nil {
			return nil, errors.Wrap(err, "scan alias row")
		}
		r.aid[aidKey{Surface: surface, EID: eid}] = aid
		if aid > maxAID {
			maxAID = aid
		}
	}
	r.nextAID = maxAID

	s.logger.WithFields(logrus.Fields{"senses": len(r.senses), "aliases": len(r.aid)}).Info("identity store loaded")
	return r, nil
}

// Checkpoint persists r's full sense/AID tables, replacing whatever was
// stored before (spec.md §5 "checkpointed periodically").
func (s *Store) Checkpoint(r *Registry) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin checkpoint tx")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM senses`); err != nil {
		return errors.Wrap(err, "clear senses")
	}
	if _, err := tx.Exec(`DELETE FROM aliases`); err != nil {
		return errors.Wrap(err, "clear aliases")
	}

	senseStmt, err := tx.Prepare(`INSERT INTO senses (canonical, eid, type, sp, profile_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare sense insert")
	}
	defer senseStmt.Close()

	for canonical, list := range r.senses {
		for _, sense := range list {
			spJSON, err := json.Marshal(sense.SP)
			if err != nil {
				return errors.Wrap(err, "marshal sense path")
			}
			profileJSON, err := json.Marshal(rowFromProfile(sense.Profile))
			if err != nil {
				return errors.Wrap(err, "marshal profile snapshot")
			}
			if _, err := senseStmt.Exec(canonical, sense.EID, string(sense.Type), string(spJSON), string(profileJSON)); err != nil {
				return errors.Wrap(err, "insert sense")
			}
		}
	}

	aliasStmt, err := tx.Prepare(`INSERT INTO aliases (surface, eid, aid) VALUES (?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare alias insert")
	}
	defer aliasStmt.Close()

	for key, aid := range r.aid {
		if _, err := aliasStmt.Exec(key.Surface, key.EID, aid); err != nil {
			return errors.Wrap(err, "insert alias")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit checkpoint")
	}
	s.logger.WithFields(logrus.Fields{"senses": len(r.senses), "aliases": len(r.aid)}).Info("identity store checkpointed")
	return nil
}

func profileFromRow(pr profileRow) graph.EntityProfile {
	p := graph.NewEntityProfile(pr.Canonical)
	p.MentionCount = pr.MentionCount
	p.MaleVotes = pr.MaleVotes
	p.FemaleVotes = pr.FemaleVotes
	p.PluralVotes = pr.PluralVotes
	p.Titles = toSet(pr.Titles)
	p.Descriptors = toSet(pr.Descriptors)
	p.CoOccurringPlaces = toSet(pr.CoOccurringPlaces)
	p.CoOccurringOrgs = toSet(pr.CoOccurringOrgs)
	return *p
}

func rowFromProfile(p graph.EntityProfile) profileRow {
	return profileRow{
		Canonical:         p.Canonical,
		MentionCount:      p.MentionCount,
		Titles:            fromSet(p.Titles),
		Descriptors:       fromSet(p.Descriptors),
		MaleVotes:         p.MaleVotes,
		FemaleVotes:       p.FemaleVotes,
		PluralVotes:       p.PluralVotes,
		CoOccurringPlaces: fromSet(p.CoOccurringPlaces),
		CoOccurringOrgs:   fromSet(p.CoOccurringOrgs),
	}
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, v := range list {
		out[v] = struct{}{}
	}
	return out
}

func fromSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}
