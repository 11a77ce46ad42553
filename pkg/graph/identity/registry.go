// Package identity implements C11, the stable cross-document identity
// registry (spec.md §4.11): EID/AID tables and the per-canonical sense
// table that discriminates homonymous entities by profile similarity.
package identity

import (
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
	"github.com/sirupsen/logrus"
	"github.com/tiendc/go-deepcopy"

	"github.com/narrative-kg/extract/pkg/graph"
)

// resolveThreshold is the minimum profile-similarity confidence at which
// a candidate sense is considered "the same entity" at all (spec.md
// §4.11 step 1). Below it, no existing EID is reused.
const resolveThreshold = 0.70

// sameSenseThreshold is the confidence above which a resolved sense is
// treated as confidently identical rather than a conservative split
// (spec.md §7 "Identity resolution ambiguity at confidence > 0.7 but <
// 0.8: a new sense is minted").
const sameSenseThreshold = 0.80

// spReuseThreshold is the profile-similarity floor for reusing an
// existing SP once a sense has already been judged the same entity.
const spReuseThreshold = 0.70

// Sense is one (eid, type, sense path, profile snapshot) entry in the
// sense table for a single canonical name (spec.md §4.11).
type Sense struct {
	EID     int
	Type    graph.EntityType
	SP      []int
	Profile graph.EntityProfile // value snapshot, never aliased to a live profile
}

// aidKey identifies one (surface form, eid) binding.
type aidKey struct {
	Surface string
	EID     int
}

// Registry is the process-wide C11 store. Per spec.md §5, it is the only
// shared mutable state across documents: a single writer lock protects
// every allocation; readers may take a Snapshot without blocking writers
// for long.
type Registry struct {
	mu sync.RWMutex

	nextEID int
	nextAID int

	// senses buckets every minted sense by lowercased canonical. A
	// canonical with exactly one entry is in state first_sense; more than
	// one means disambiguating/multi_sense (spec.md §4.11 "State machines").
	senses map[string][]*Sense

	aid map[aidKey]int

	logger *logrus.Entry
}

// NewRegistry creates an empty identity registry.
func NewRegistry() *Registry {
	return &Registry{
		senses: make(map[string][]*Sense),
		aid:    make(map[aidKey]int),
		logger: logrus.WithField("component", "C11"),
	}
}

// Resolution is the outcome of resolving one entity's canonical/type/
// profile against the registry: the EID/SP to stamp on the entity, plus
// whether this allocation minted a brand-new sense.
type Resolution struct {
	EID        int
	SP         []int
	AID        int
	IsNew      bool
	Reason     string
	Confidence float64
}

// Assign implements spec.md §4.11's entity-finalization algorithm for
// one entity: resolve against existing senses sharing (canonical, type),
// reuse or split, then bind an AID for surface (the entity's own
// canonical, or an alias being promoted to a stable identity).
func (r *Registry) Assign(canonical string, entType graph.EntityType, profile *graph.EntityProfile, surface string) Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(canonical)
	existing := r.senses[key]

	var snapshot graph.EntityProfile
	if profile != nil {
		snapshot = snapshotProfile(*profile)
	} else {
		snapshot = snapshotProfile(*graph.NewEntityProfile(canonical))
	}

	var best *Sense
	bestConf := 0.0
	for _, s := range existing {
		if s.Type != entType {
			continue
		}
		conf := discriminate(snapshot, s.Profile, canonical)
		if conf > bestConf {
			bestConf = conf
			best = s
		}
	}

	var res Resolution
	switch {
	case best != nil && bestConf >= sameSenseThreshold:
		best.Profile = snapshot
		res = Resolution{EID: best.EID, SP: best.SP, IsNew: false, Reason: "reused sense (high confidence)", Confidence: bestConf}
	case best != nil && bestConf >= resolveThreshold:
		// Conservative split (spec.md §7): mint a new sense rather than
		// silently merging an ambiguous match.
		sp := nextSP(existing)
		r.nextEID++
		newSense := &Sense{EID: r.nextEID, Type: entType, SP: sp, Profile: snapshot}
		r.senses[key] = append(r.senses[key], newSense)
		res = Resolution{EID: newSense.EID, SP: sp, IsNew: true, Reason: "conservative split (ambiguous profile match)", Confidence: bestConf}
	default:
		sp := nextSP(existing)
		r.nextEID++
		newSense := &Sense{EID: r.nextEID, Type: entType, SP: sp, Profile: snapshot}
		r.senses[key] = append(r.senses[key], newSense)
		reason := "new sense (no matching profile)"
		if best == nil {
			reason = "new sense (first sight)"
		}
		res = Resolution{EID: newSense.EID, SP: sp, IsNew: true, Reason: reason, Confidence: bestConf}
	}

	res.AID = r.bindAliasLocked(surface, res.EID, res.Confidence)
	r.logger.WithFields(logrus.Fields{
		"canonical": canonical, "eid": res.EID, "sp": res.SP, "reason": res.Reason,
	}).Debug("identity resolved")
	return res
}

// BindAlias registers (surface -> eid) with the given confidence,
// returning the existing AID if the binding already exists (idempotent,
// spec.md §4.11 "AID table").
func (r *Registry) BindAlias(surface string, eid int, confidence float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindAliasLocked(surface, eid, confidence)
}

func (r *Registry) bindAliasLocked(surface string, eid int, confidence float64) int {
	k := aidKey{Surface: strings.ToLower(surface), EID: eid}
	if aid, ok := r.aid[k]; ok {
		return aid
	}
	r.nextAID++
	r.aid[k] = r.nextAID
	return r.nextAID
}

func nextSP(existing []*Sense) []int {
	max := 0
	for _, s := range existing {
		if len(s.SP) > 0 && s.SP[len(s.SP)-1] > max {
			max = s.SP[len(s.SP)-1]
		}
	}
	return []int{max + 1}
}

// Snapshot returns a read-only copy of the registry's sense table,
// safe to hand to a reader without holding the writer lock open
// (spec.md §5 "readers take a snapshot").
func (r *Registry) Snapshot() map[string][]Sense {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]Sense, len(r.senses))
	for k, list := range r.senses {
		copied := make([]Sense, len(list))
		for i, s := range list {
			copied[i] = *s
		}
		out[k] = copied
	}
	return out
}

// snapshotProfile copies the mutable set fields of a profile so a
// sense's stored snapshot never aliases the live, still-accumulating
// profile map.
func snapshotProfile(p graph.EntityProfile) graph.EntityProfile {
	var cp graph.EntityProfile
	if err := deepcopy.Copy(&cp, &p); err != nil {
		// Copy only fails on mismatched shapes, which can't happen for
		// identical types; keep the original value as a degraded fallback.
		return p
	}
	return cp
}

// discriminate implements spec.md §4.11's "discrimination compares
// profile attributes ... and returns (shouldDisambiguate, confidence,
// reason)" as a single confidence score in [0,1]: high means "likely the
// same real-world entity". canonical is used only to break ties when
// both profiles are empty (identical surface form is itself weak
// evidence of identity).
func discriminate(a, b graph.EntityProfile, canonical string) float64 {
	var signals []float64

	if len(a.Titles) > 0 && len(b.Titles) > 0 {
		if setsDisjoint(a.Titles, b.Titles) {
			signals = append(signals, 0.0) // conflicting titles: strong negative
		} else {
			signals = append(signals, 1.0)
		}
	}

	if loc := jaccard(a.CoOccurringPlaces, b.CoOccurringPlaces); loc >= 0 {
		signals = append(signals, loc)
	}
	if org := jaccard(a.CoOccurringOrgs, b.CoOccurringOrgs); org >= 0 {
		signals = append(signals, org)
	}
	if desc := jaccard(a.Descriptors, b.Descriptors); desc >= 0 {
		signals = append(signals, desc)
	}

	if a.MaleVotes+a.FemaleVotes > 0 && b.MaleVotes+b.FemaleVotes > 0 {
		aMale := a.MaleVotes >= a.FemaleVotes
		bMale := b.MaleVotes >= b.FemaleVotes
		if aMale != bMale {
			signals = append(signals, 0.1)
		} else {
			signals = append(signals, 0.9)
		}
	}

	if len(signals) == 0 {
		// No comparable context at all: fall back to how similar the two
		// canonicals are textually, so "Aragorn" and "Aragorn" (no other
		// profile data yet) still resolve together.
		return matchr.JaroWinkler(strings.ToLower(canonical), strings.ToLower(b.Canonical), true)
	}

	sum := 0.0
	for _, s := range signals {
		sum += s
	}
	return sum / float64(len(signals))
}

func setsDisjoint(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return false
		}
	}
	return true
}

// jaccard returns the Jaccard similarity of two string sets, or -1 if
// both are empty (no signal).
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return -1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return -1
	}
	return float64(inter) / float64(union)
}
