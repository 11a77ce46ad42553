package processors

import (
	"strings"

	"github.com/narrative-kg/extract/pkg/graph"
)

// assignDependencies synthesizes UD-style head_index/dep_label edges from
// POS-tag adjacency. It is not a real dependency parse — see the
// ProseParser doc comment — but it is deterministic and gives C7 enough
// structure (root, nsubj, dobj, prep/pobj, det/amod, cc/conj) to walk
// shortest paths and run trigger-pattern matching.
func assignDependencies(tokens []graph.Token) {
	n := len(tokens)
	if n == 0 {
		return
	}

	rootIdx := findRoot(tokens)
	tokens[rootIdx].HeadIndex = rootIdx
	tokens[rootIdx].DepLabel = "root"

	attachSubjects(tokens, rootIdx)
	attachObjects(tokens, rootIdx)
	attachModifiers(tokens)
	attachCoordination(tokens)

	// Catch-all: anything still unattached hangs off the root so every
	// token has a head, matching the external-parser contract.
	for i := range tokens {
		if i != rootIdx && tokens[i].DepLabel == "" {
			tokens[i].HeadIndex = rootIdx
			tokens[i].DepLabel = "dep"
		}
	}
}

func findRoot(tokens []graph.Token) int {
	for i, t := range tokens {
		if strings.HasPrefix(t.POS, "VB") {
			return i
		}
	}
	return len(tokens) - 1
}

// attachSubjects finds the nearest NOUN/PROPN/PRON before root (with no
// intervening verb) and labels it nsubj; coordinated subjects joined by
// "and"/"," before the same root get conj.
func attachSubjects(tokens []graph.Token, rootIdx int) {
	var subjIdx = -1
	for i := rootIdx - 1; i >= 0; i-- {
		if isVerbPOS(tokens[i].POS) {
			break
		}
		if isNominalPOS(tokens[i].POS) {
			subjIdx = i
			break
		}
	}
	if subjIdx < 0 {
		return
	}
	tokens[subjIdx].HeadIndex = rootIdx
	tokens[subjIdx].DepLabel = "nsubj"

	// Walk further back across coordination: "A and B sailed" -> B is
	// nsubj (handled above, nearest to root), A is conj off B.
	for i := subjIdx - 1; i >= 0; i-- {
		if isNominalPOS(tokens[i].POS) {
			tokens[i].HeadIndex = subjIdx
			tokens[i].DepLabel = "conj"
		} else if strings.ToLower(tokens[i].Text) == "and" || tokens[i].POS == "CC" {
			tokens[i].HeadIndex = subjIdx
			tokens[i].DepLabel = "cc"
		} else if tokens[i].Text == "," {
			continue
		} else {
			break
		}
	}
}

// attachObjects labels the first nominal after root as dobj, and any
// "preposition + nominal" pair after that as prep/pobj.
func attachObjects(tokens []graph.Token, rootIdx int) {
	objIdx := -1
	for i := rootIdx + 1; i < len(tokens); i++ {
		if isNominalPOS(tokens[i].POS) {
			objIdx = i
			break
		}
		if tokens[i].POS == "IN" || tokens[i].POS == "TO" {
			break
		}
	}
	if objIdx >= 0 {
		tokens[objIdx].HeadIndex = rootIdx
		tokens[objIdx].DepLabel = "dobj"
	}

	for i := rootIdx + 1; i < len(tokens); i++ {
		if tokens[i].POS != "IN" && tokens[i].POS != "TO" {
			continue
		}
		tokens[i].HeadIndex = rootIdx
		tokens[i].DepLabel = "prep"
		for j := i + 1; j < len(tokens) && j < i+4; j++ {
			if isNominalPOS(tokens[j].POS) {
				tokens[j].HeadIndex = i
				tokens[j].DepLabel = "pobj"
				break
			}
		}
	}
}

// attachModifiers labels determiners and adjectives against the nearest
// following nominal head.
func attachModifiers(tokens []graph.Token) {
	for i := range tokens {
		if tokens[i].DepLabel != "" {
			continue
		}
		if tokens[i].POS != "DT" && tokens[i].POS != "JJ" && tokens[i].POS != "JJR" && tokens[i].POS != "JJS" {
			continue
		}
		for j := i + 1; j < len(tokens) && j < i+4; j++ {
			if isNominalPOS(tokens[j].POS) {
				tokens[i].HeadIndex = j
				if tokens[i].POS == "DT" {
					tokens[i].DepLabel = "det"
				} else {
					tokens[i].DepLabel = "amod"
				}
				break
			}
		}
	}
}

// attachCoordination sweeps any remaining "and"/comma-joined nominal
// chains not already handled by attachSubjects (e.g. coordinated
// objects: "studied at Hogwarts and Beauxbatons").
func attachCoordination(tokens []graph.Token) {
	for i := 1; i < len(tokens); i++ {
		if tokens[i].DepLabel != "" {
			continue
		}
		if !isNominalPOS(tokens[i].POS) {
			continue
		}
		prev := i - 1
		if prev >= 0 && (strings.ToLower(tokens[prev].Text) == "and" || tokens[prev].POS == "CC") {
			// Find nearest preceding nominal to attach under.
			for j := prev - 1; j >= 0; j-- {
				if isNominalPOS(tokens[j].POS) {
					tokens[i].HeadIndex = j
					tokens[i].DepLabel = "conj"
					tokens[prev].HeadIndex = j
					tokens[prev].DepLabel = "cc"
					break
				}
			}
		}
	}
}

func isNominalPOS(pos string) bool {
	switch pos {
	case "NN", "NNS", "NNP", "NNPS", "PRP":
		return true
	default:
		return false
	}
}

func isVerbPOS(pos string) bool {
	return strings.HasPrefix(pos, "VB")
}
