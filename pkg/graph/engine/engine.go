// Package engine orchestrates the C1-C12 extraction pipeline over a
// single document and across document batches. It owns no linguistic
// logic of its own: every stage lives in pkg/graph/processors or
// pkg/graph/identity, and the engine wires them together in the
// data-flow order of spec.md §2.
package engine

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/identity"
	"github.com/narrative-kg/extract/pkg/graph/processors"
)

var (
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "extraction_stage_duration_seconds",
			Help: "Time spent in each pipeline stage",
		},
		[]string{"stage"},
	)

	documentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_documents_total",
			Help: "Documents processed, by outcome",
		},
		[]string{"status"},
	)

	entitiesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extraction_entities_emitted_total",
		Help: "Entities surviving the full pipeline",
	})

	relationsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extraction_relations_emitted_total",
		Help: "Relations surviving the full pipeline",
	})

	relationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_relations_dropped_total",
			Help: "Relation candidates silently dropped, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(documentsProcessed)
	prometheus.MustRegister(entitiesEmitted)
	prometheus.MustRegister(relationsEmitted)
	prometheus.MustRegister(relationsDropped)
}

// Engine runs the extraction pipeline. It is safe for concurrent use:
// all per-document state lives on the stack of Extract, and the only
// shared mutable collaborator is the identity registry, which
// serializes internally (spec.md §5).
type Engine struct {
	cfg       *graph.ExtractionConfig
	parser    processors.Parser
	registry  *identity.Registry
	telemetry *graph.Telemetry
	logger    *logrus.Entry

	segmenter *processors.Segmenter
	harvester *processors.Harvester
	filter    *processors.QualityFilter
	profiles  *processors.ProfileBuilder
	coref     *processors.CorefResolver
	deictic   *processors.DeicticRewriter
	dep       *processors.DependencyRelationInducer
	regex     *processors.RegexRelationInducer
	narrative *processors.NarrativeRelationInducer
	post      *processors.PostProcessor
}

// Option customizes an Engine.
type Option func(*Engine)

// WithParser replaces the default prose-backed parser adapter with an
// external one (spec.md §6 "Parser contract").
func WithParser(p processors.Parser) Option {
	return func(e *Engine) { e.parser = p }
}

// WithRegistry attaches a cross-document identity registry; without one,
// stable IDs are skipped even when the config asks for them.
func WithRegistry(r *identity.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithTelemetry attaches an OTel tracer/meter pair for per-stage spans.
func WithTelemetry(t *graph.Telemetry) Option {
	return func(e *Engine) { e.telemetry = t }
}

// New builds an Engine from cfg (nil means DefaultConfig).
func New(cfg *graph.ExtractionConfig, opts ...Option) *Engine {
	if cfg == nil {
		cfg = graph.DefaultConfig()
	}

	post := processors.NewPostProcessor(cfg.MinConfidence)
	post.Strict = cfg.PrecisionModeStrict
	post.SkipDedup = !cfg.DeduplicationEnabled
	if cfg.DenseNarrativePruneEntityThreshold > 0 {
		post.PruneEntityThreshold = cfg.DenseNarrativePruneEntityThreshold
	}

	e := &Engine{
		cfg:       cfg,
		parser:    processors.NewProseParser(),
		telemetry: graph.NopTelemetry(),
		logger:    logrus.WithField("component", "engine"),
		segmenter: processors.NewSegmenter(),
		harvester: processors.NewHarvester(),
		filter:    processors.NewQualityFilter(cfg.MinConfidence),
		profiles:  processors.NewProfileBuilder(),
		coref:     processors.NewCorefResolver(3),
		deictic:   processors.NewDeicticRewriter(),
		dep:       processors.NewDependencyRelationInducer(),
		regex:     processors.NewRegexRelationInducer(),
		narrative: processors.NewNarrativeRelationInducer(),
		post:      post,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs the full pipeline over one document.
func (e *Engine) Extract(ctx context.Context, docID, text string) (*graph.ExtractionResult, error) {
	result, _, err := e.ExtractWithStats(ctx, docID, text)
	return result, err
}

// ExtractWithStats is Extract plus the diagnostic drop counters of
// spec.md §7. A failed document yields no partial results; a succeeded
// one always yields a well-formed result, possibly empty.
func (e *Engine) ExtractWithStats(ctx context.Context, docID, text string) (*graph.ExtractionResult, *graph.Stats, error) {
	stats := graph.NewStats()
	log := e.logger.WithField("doc_id", docID)

	ctx, rootSpan := e.telemetry.Tracer.Start(ctx, "extract")
	defer rootSpan.End()

	doc, err := graph.NewDocument(docID, text)
	if err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		documentsProcessed.WithLabelValues("success").Inc()
		return emptyResult(), stats, nil
	}

	// C1: segmentation.
	var segments []graph.Segment
	if err := e.stage(ctx, "C1.segment", func() error {
		var serr error
		segments, serr = e.segmenter.Segment(docID, text)
		return serr
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	// C2: parse. The parser is the only suspension point (spec.md §5).
	var sentences []graph.ParsedSentence
	if err := e.stage(ctx, "C2.parse", func() error {
		var perr error
		sentences, perr = e.parser.Parse(ctx, text)
		return perr
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	// C3: harvest. NER zero-results is not an error (spec.md §7).
	var entities []graph.Entity
	var spans []graph.Span
	if err := e.stage(ctx, "C3.harvest", func() error {
		entities, spans = e.harvester.Harvest(doc, segments, e.cfg.SegmentContextWindow)
		return nil
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}
	stats.EntitiesHarvested = len(entities)

	// C4: quality filter.
	if e.cfg.EntityFilterEnabled {
		if err := e.stage(ctx, "C4.filter", func() error {
			entities, spans = e.filter.Filter(entities, spans)
			return nil
		}); err != nil {
			documentsProcessed.WithLabelValues("error").Inc()
			return nil, nil, err
		}
	}
	stats.EntitiesFiltered = stats.EntitiesHarvested - len(entities)

	// C12: profiles, seeded with any prior map for cross-document
	// continuity (updated in place, spec.md §4.12).
	var profiles map[string]*graph.EntityProfile
	if err := e.stage(ctx, "C12.profiles", func() error {
		profiles = e.profiles.Build(doc, entities, spans, sentences, e.cfg.ExistingProfiles)
		return nil
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	// C5: coreference; links become virtual spans for the relation pass.
	var corefLinks []graph.CorefLink
	if err := e.stage(ctx, "C5.coref", func() error {
		corefLinks = e.coref.Resolve(sentences, entities, spans, profiles)
		return nil
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}
	spansWithVirtual := append(append([]graph.Span{}, spans...), virtualSpans(corefLinks)...)

	// C6: deictic rewriting, consumed only by the narrative inducer.
	var derivedSegments []graph.Segment
	if err := e.stage(ctx, "C6.deictic", func() error {
		derivedSegments = e.deictic.RewriteSegments(text, segments, entities, spans)
		return nil
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	// C7 (twice), C8, C9: relation induction.
	var candidates []graph.Relation
	if err := e.stage(ctx, "C7.dep", func() error {
		rels, rs := e.dep.Induce(sentences, entities, spans, nil)
		e.recordRelationStats(stats, rs)
		candidates = append(candidates, rels...)

		rels, rs = e.dep.Induce(sentences, entities, spansWithVirtual, corefLinks)
		e.recordRelationStats(stats, rs)
		candidates = append(candidates, rels...)
		return nil
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	if err := e.stage(ctx, "C8.regex", func() error {
		rels, rs := e.regex.Induce(segments, entities, spans)
		e.recordRelationStats(stats, rs)
		candidates = append(candidates, rels...)
		return nil
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	if err := e.stage(ctx, "C9.narrative", func() error {
		rels, rs := e.narrative.Induce(derivedSegments, entities, corefLinks)
		e.recordRelationStats(stats, rs)
		candidates = append(candidates, repairEvidence(rels, doc)...)
		return nil
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	// C10 step 5: gated global pass with the widened coref window.
	hasParagraphBreak := strings.Contains(text, "\n\n")
	if e.cfg.ShouldUseGlobalPass(len(segments), len(text), hasParagraphBreak) {
		if err := e.stage(ctx, "C10.global", func() error {
			candidates = append(candidates, e.globalPass(doc, segments, sentences, entities, spansWithVirtual, corefLinks, candidates)...)
			return nil
		}); err != nil {
			documentsProcessed.WithLabelValues("error").Inc()
			return nil, nil, err
		}
	}

	// C10: post-processing.
	var relations []graph.Relation
	var postStats processors.RelationStats
	if err := e.stage(ctx, "C10.post", func() error {
		entities, spans, relations, postStats = e.post.Process(entities, spans, candidates)
		return nil
	}); err != nil {
		documentsProcessed.WithLabelValues("error").Inc()
		return nil, nil, err
	}
	stats.Drop(graph.DropLowConfidence, postStats.GuardDropped)
	relationsDropped.WithLabelValues(string(graph.DropLowConfidence)).Add(float64(postStats.GuardDropped))
	stats.RelationsFinal = len(relations)

	result := &graph.ExtractionResult{
		Entities:  entities,
		Spans:     spans,
		Relations: relations,
		Profiles:  profiles,
	}

	// C11: stable identity assignment.
	if e.cfg.GenerateStableIDs && e.registry != nil {
		if err := e.stage(ctx, "C11.identity", func() error {
			e.assignStableIDs(result, profiles)
			return nil
		}); err != nil {
			documentsProcessed.WithLabelValues("error").Inc()
			return nil, nil, err
		}
	}

	entitiesEmitted.Add(float64(len(result.Entities)))
	relationsEmitted.Add(float64(len(result.Relations)))
	documentsProcessed.WithLabelValues("success").Inc()
	log.WithFields(logrus.Fields{
		"entities":  len(result.Entities),
		"relations": len(result.Relations),
	}).Info("extraction complete")
	return result, stats, nil
}

// BatchExtract processes documents concurrently (spec.md §5 "documents
// may be processed in parallel"). parallelism <= 0 means unbounded.
// The first failure cancels the remaining documents.
func (e *Engine) BatchExtract(ctx context.Context, docs map[string]string, parallelism int) (map[string]*graph.ExtractionResult, error) {
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	results := make(map[string]*graph.ExtractionResult, len(docs))

	type outcome struct {
		id     string
		result *graph.ExtractionResult
	}
	outcomes := make(chan outcome, len(docs))

	for id, text := range docs {
		id, text := id, text
		g.Go(func() error {
			result, err := e.Extract(ctx, id, text)
			if err != nil {
				return err
			}
			outcomes <- outcome{id: id, result: result}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(outcomes)
	for o := range outcomes {
		results[o.id] = o.result
	}
	return results, nil
}

// globalPass re-harvests with the coref-widened context window (spec.md
// §4.3: "capped to >=1000 for the coref-aware relation pass"), re-runs
// C7, remaps the results onto the main registry (C10 step 1) and filters
// them through the allow-list/floor gate (C10 step 5).
func (e *Engine) globalPass(doc *graph.Document, segments []graph.Segment, sentences []graph.ParsedSentence, entities []graph.Entity, spansWithVirtual []graph.Span, corefLinks []graph.CorefLink, existing []graph.Relation) []graph.Relation {
	window := e.cfg.CorefRelationContextWindow
	if window < e.cfg.RelationContextWindow {
		window = e.cfg.RelationContextWindow
	}
	if window < 1000 {
		window = 1000
	}

	wideEntities, wideSpans := e.harvester.Harvest(doc, segments, window)
	wideRels, _ := e.dep.Induce(sentences, wideEntities, append(wideSpans, virtualSpans(corefLinks)...), corefLinks)

	remapped := remapRelations(wideRels, wideEntities, entities)

	byID := make(map[string]*graph.Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}
	existingByTriple := make(map[string]float64, len(existing))
	for _, r := range existing {
		subj, obj := byID[r.Subj], byID[r.Obj]
		if subj == nil || obj == nil {
			continue
		}
		key := strings.ToLower(subj.Canonical) + "|" + string(r.Pred) + "|" + strings.ToLower(obj.Canonical)
		if r.Confidence > existingByTriple[key] {
			existingByTriple[key] = r.Confidence
		}
	}

	return processors.FilterGlobalPass(remapped, existingByTriple, byID, e.cfg.GlobalPassConfidenceFloor())
}

// remapRelations rewrites subj/obj IDs minted by a secondary harvest
// onto the primary registry's entity IDs, matching by (type, lowercased
// canonical). Relations whose endpoints have no primary counterpart are
// dropped.
func remapRelations(relations []graph.Relation, from, to []graph.Entity) []graph.Relation {
	type key struct {
		t graph.EntityType
		c string
	}
	fromByID := make(map[string]*graph.Entity, len(from))
	for i := range from {
		fromByID[from[i].ID] = &from[i]
	}
	toByKey := make(map[key]string, len(to))
	for i := range to {
		toByKey[key{to[i].Type, strings.ToLower(to[i].Canonical)}] = to[i].ID
	}

	resolve := func(id string) (string, bool) {
		e, ok := fromByID[id]
		if !ok {
			// Already a primary ID (virtual span referent).
			return id, true
		}
		mapped, ok := toByKey[key{e.Type, strings.ToLower(e.Canonical)}]
		return mapped, ok
	}

	out := make([]graph.Relation, 0, len(relations))
	for _, r := range relations {
		subj, okS := resolve(r.Subj)
		obj, okO := resolve(r.Obj)
		if !okS || !okO || subj == obj {
			continue
		}
		r.Subj, r.Obj = subj, obj
		out = append(out, r)
	}
	return out
}

// assignStableIDs stamps EID/AID/SP on every final entity via the
// identity registry and collects StableID records (spec.md §4.11).
func (e *Engine) assignStableIDs(result *graph.ExtractionResult, profiles map[string]*graph.EntityProfile) {
	for i := range result.Entities {
		ent := &result.Entities[i]
		res := e.registry.Assign(ent.Canonical, ent.Type, profiles[ent.Canonical], ent.Canonical)
		ent.EID = res.EID
		ent.AID = res.AID
		ent.SP = res.SP
		for alias := range ent.Aliases {
			e.registry.BindAlias(alias, res.EID, 0.9)
		}
		result.StableIDs = append(result.StableIDs, graph.StableID{
			EntityID: ent.ID,
			EID:      res.EID,
			AID:      res.AID,
			SP:       res.SP,
		})
	}
}

// stage brackets fn with the deadline check, a trace span and the
// duration histogram. Stages never run after the context is done:
// passing the deadline aborts whichever stage would be next and the
// document yields no partial results (spec.md §5).
func (e *Engine) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := e.telemetry.Tracer.Start(ctx, name)
	defer span.End()
	timer := prometheus.NewTimer(stageDuration.WithLabelValues(name))
	defer timer.ObserveDuration()
	return fn()
}

func (e *Engine) recordRelationStats(stats *graph.Stats, rs processors.RelationStats) {
	stats.RelationsCandidates += rs.Candidates
	stats.Drop(graph.DropGuardViolation, rs.GuardDropped)
	relationsDropped.WithLabelValues(string(graph.DropGuardViolation)).Add(float64(rs.GuardDropped))
}

// virtualSpans materializes coref links as virtual spans so pronouns can
// serve as relation subjects/objects; virtual spans never reach the
// exported span list.
func virtualSpans(links []graph.CorefLink) []graph.Span {
	out := make([]graph.Span, 0, len(links))
	for _, l := range links {
		out = append(out, graph.Span{
			EntityID: l.EntityID,
			Start:    l.MentionStart,
			End:      l.MentionEnd,
			Virtual:  true,
		})
	}
	return out
}

// repairEvidence re-anchors evidence text to the source document: the
// narrative inducer runs over deictic-rewritten segment text, and
// rewritten strings must never be exported (spec.md §4.6).
func repairEvidence(relations []graph.Relation, doc *graph.Document) []graph.Relation {
	for i := range relations {
		for j := range relations[i].Evidence {
			ev := &relations[i].Evidence[j]
			if text, err := doc.Slice(ev.Start, ev.End); err == nil {
				ev.Text = text
			}
		}
	}
	return relations
}

func emptyResult() *graph.ExtractionResult {
	return &graph.ExtractionResult{
		Entities:  []graph.Entity{},
		Spans:     []graph.Span{},
		Relations: []graph.Relation{},
		Profiles:  map[string]*graph.EntityProfile{},
	}
}
