package graph

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ExtractionConfig mirrors the options table in spec.md §6. Every field
// except DenseNarrativePruneEntityThreshold and ExistingProfiles has an
// environment-variable override, consulted by LoadConfig and by
// applyEnvOverrides after a YAML file is loaded (or even when none is).
type ExtractionConfig struct {
	SegmentContextWindow       int     `yaml:"segment_context_window"`
	RelationContextWindow      int     `yaml:"relation_context_window"`
	CorefRelationContextWindow int     `yaml:"coref_relation_context_window"`
	GlobalRelationExtraction   *bool   `yaml:"global_relation_extraction"`
	MinConfidence              float64 `yaml:"min_confidence"`
	EntityFilterEnabled        bool    `yaml:"entity_filter_enabled"`
	DeduplicationEnabled       bool    `yaml:"deduplication_enabled"`
	GenerateStableIDs          bool    `yaml:"generate_stable_ids"`
	PrecisionModeStrict        bool    `yaml:"precision_mode_strict"`

	// DenseNarrativePruneEntityThreshold exposes the entity-count bound of
	// the heuristic in spec.md §4.10 step 8 / §9 Open Questions as config
	// rather than a hard-coded 12.
	DenseNarrativePruneEntityThreshold int `yaml:"dense_narrative_prune_entity_threshold"`

	// ExistingProfiles seeds C12 for cross-document continuity; not
	// loaded from YAML, set programmatically by callers.
	ExistingProfiles map[string]*EntityProfile `yaml:"-"`
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() *ExtractionConfig {
	return &ExtractionConfig{
		SegmentContextWindow:               200,
		RelationContextWindow:              200,
		CorefRelationContextWindow:         1000,
		GlobalRelationExtraction:           nil, // nil => auto-enable heuristic
		MinConfidence:                      0.70,
		EntityFilterEnabled:                true,
		DeduplicationEnabled:               true,
		GenerateStableIDs:                  true,
		PrecisionModeStrict:                false,
		DenseNarrativePruneEntityThreshold: 12,
	}
}

// LoadConfig reads a YAML config file (if path is non-empty and exists),
// overlays it on DefaultConfig, then applies environment overrides.
func LoadConfig(path string) (*ExtractionConfig, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides implements spec.md §6 "Environment overrides": strings
// consulted if present, else the existing (file- or default-derived) value.
func applyEnvOverrides(cfg *ExtractionConfig) {
	if v, ok := envInt("KG_SEGMENT_CONTEXT_WINDOW"); ok {
		cfg.SegmentContextWindow = v
	}
	if v, ok := envInt("KG_RELATION_CONTEXT_WINDOW"); ok {
		cfg.RelationContextWindow = v
	}
	if v, ok := envInt("KG_COREF_RELATION_CONTEXT_WINDOW"); ok {
		cfg.CorefRelationContextWindow = v
	}
	if v, ok := envBool("KG_GLOBAL_RELATION_EXTRACTION"); ok {
		cfg.GlobalRelationExtraction = &v
	}
	if v, ok := envFloat("KG_MIN_CONFIDENCE"); ok {
		cfg.MinConfidence = v
	}
	if v, ok := envBool("KG_ENTITY_FILTER_ENABLED"); ok {
		cfg.EntityFilterEnabled = v
	}
	if v, ok := envBool("KG_DEDUPLICATION_ENABLED"); ok {
		cfg.DeduplicationEnabled = v
	}
	if v, ok := envBool("KG_GENERATE_STABLE_IDS"); ok {
		cfg.GenerateStableIDs = v
	}
	if v, ok := envBool("KG_PRECISION_MODE_STRICT"); ok {
		cfg.PrecisionModeStrict = v
	}
}

// ShouldUseGlobalPass implements spec.md §6's auto-enable heuristic for
// global_relation_extraction: explicit config wins; otherwise it enables
// when the document has >=5 segments, >=600 characters, or a blank-line
// paragraph break.
func (c *ExtractionConfig) ShouldUseGlobalPass(segmentCount, docLen int, hasParagraphBreak bool) bool {
	if c.GlobalRelationExtraction != nil {
		return *c.GlobalRelationExtraction
	}
	return segmentCount >= 5 || docLen >= 600 || hasParagraphBreak
}

// GlobalPassConfidenceFloor is spec.md §9's resolved reading of the Open
// Question: max(min_confidence, 0.8).
func (c *ExtractionConfig) GlobalPassConfidenceFloor() float64 {
	if c.MinConfidence > 0.8 {
		return c.MinConfidence
	}
	return 0.8
}

func envInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(key string) (float64, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
