// Command extract runs the knowledge-graph extraction pipeline over one
// or more input files (plain text, HTML or PDF) and writes the merged
// graph to the configured sinks.
//
// Usage:
//
//	extract [flags] file...
//
// Flags select the sinks: -out writes the JSON graph layout, -xlsx the
// analyst workbook, -viz a D3 HTML rendering, and -neo4j-uri a Neo4j
// instance. -identity-db persists EID/AID/SP allocations across runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/engine"
	"github.com/narrative-kg/extract/pkg/graph/identity"
	"github.com/narrative-kg/extract/pkg/graph/metrics"
	"github.com/narrative-kg/extract/pkg/graph/processors"
	"github.com/narrative-kg/extract/pkg/graph/query"
	"github.com/narrative-kg/extract/pkg/graph/storage"
	"github.com/narrative-kg/extract/pkg/graph/visualizer"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "Path to environment file")
		configPath  = flag.String("config", "", "YAML config file (env overrides still apply)")
		outPath     = flag.String("out", "knowledge_graph.json", "JSON graph output path")
		xlsxPath    = flag.String("xlsx", "", "optional XLSX export path")
		vizPath     = flag.String("viz", "", "optional D3 HTML output path")
		neo4jURI    = flag.String("neo4j-uri", "", "optional Neo4j URI (bolt://...)")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "", "Neo4j password")
		identityDB  = flag.String("identity-db", "", "SQLite path for the cross-document identity registry")
		parallelism = flag.Int("parallelism", 4, "documents processed concurrently")
		timeout     = flag.Duration("timeout", 2*time.Minute, "per-batch deadline")
		report      = flag.Float64("report", 0, "log relations at or above this confidence after extraction")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: extract [flags] file...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	// Load the env file before the config so the KG_* overrides see it.
	if err := godotenv.Load(*envFile); err != nil {
		logger.WithError(err).WithField("env_file", *envFile).Debug("no env file loaded")
	}

	cfg, err := graph.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}

	telemetry, err := graph.NewTelemetry(prometheus.DefaultRegisterer)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize telemetry")
	}

	opts := []engine.Option{engine.WithTelemetry(telemetry)}

	var identityStore *identity.Store
	var registry *identity.Registry
	if cfg.GenerateStableIDs {
		identityStore, err = identity.OpenStore(*identityDB)
		if err != nil {
			logger.WithError(err).Fatal("failed to open identity store")
		}
		defer identityStore.Close()

		registry, err = identityStore.Load()
		if err != nil {
			logger.WithError(err).Fatal("failed to load identity registry")
		}
		opts = append(opts, engine.WithRegistry(registry))
	}

	eng := engine.New(cfg, opts...)

	docs, err := readDocuments(flag.Args())
	if err != nil {
		logger.WithError(err).Fatal("failed to read input")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	results, err := eng.BatchExtract(ctx, docs, *parallelism)
	if err != nil {
		logger.WithError(err).Fatal("extraction failed")
	}

	stores := buildStores(logger, *outPath, *xlsxPath, *neo4jURI, *neo4jUser, *neo4jPass)
	for _, st := range stores {
		if err := st.Connect(ctx); err != nil {
			logger.WithError(err).Fatal("failed to connect store")
		}
	}

	merged := graph.NewMemoryKnowledgeGraph()
	for docID, result := range results {
		logger.WithFields(logrus.Fields{
			"doc_id":    docID,
			"entities":  len(result.Entities),
			"relations": len(result.Relations),
		}).Info("document extracted")

		if err := merged.AddResult(ctx, docID, len(docs[docID]), result); err != nil {
			logger.WithError(err).WithField("doc_id", docID).Error("failed to merge result")
			continue
		}
		for _, st := range stores {
			if err := st.StoreResult(ctx, docID, result); err != nil {
				logger.WithError(err).WithField("doc_id", docID).Error("failed to store result")
			}
		}
	}

	for _, st := range stores {
		if err := st.Close(); err != nil {
			logger.WithError(err).Error("failed to close store")
		}
	}

	if registry != nil && identityStore != nil {
		if err := identityStore.Checkpoint(registry); err != nil {
			logger.WithError(err).Error("failed to checkpoint identity registry")
		}
	}

	if *vizPath != "" {
		viz := visualizer.NewD3Visualizer(*vizPath)
		if err := viz.Visualize(merged.Data()); err != nil {
			logger.WithError(err).Error("failed to write visualization")
		}
	}

	if *report > 0 {
		reportRelations(logger, merged.Data(), *report)
	}

	for _, node := range merged.Data().Nodes {
		metrics.GraphNodeCount.WithLabelValues(node.Type).Inc()
	}
	for _, edge := range merged.Data().Edges {
		metrics.GraphEdgeCount.WithLabelValues(edge.Type).Inc()
	}
	metrics.UpdateSystemMetrics()

	logger.WithFields(logrus.Fields{
		"documents": len(results),
		"nodes":     len(merged.Data().Nodes),
		"edges":     len(merged.Data().Edges),
	}).Info("done")
}

// readDocuments loads every input path, routing HTML/PDF through their
// ingestion adapters and everything else through as plain text.
func readDocuments(paths []string) (map[string]string, error) {
	html := processors.NewHTMLIngester()
	pdfIngester := processors.NewPDFIngester()

	docs := make(map[string]string, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		docID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		switch strings.ToLower(filepath.Ext(path)) {
		case ".html", ".htm":
			doc, err := html.Ingest(docID, content)
			if err != nil {
				return nil, err
			}
			docs[docID] = doc.Text
		case ".pdf":
			doc, err := pdfIngester.Ingest(docID, content)
			if err != nil {
				return nil, err
			}
			docs[docID] = doc.Text
		default:
			docs[docID] = string(content)
		}
	}
	return docs, nil
}

// reportRelations logs every merged relation at or above minWeight,
// strongest first.
func reportRelations(logger *logrus.Logger, data *graph.KnowledgeGraphData, minWeight float64) {
	labels := make(map[string]string, len(data.Nodes))
	for _, n := range data.Nodes {
		labels[n.ID] = n.Label
	}

	ex, err := query.NewExecutor(data)
	if err != nil {
		logger.WithError(err).Error("failed to build query executor")
		return
	}
	edges, err := ex.ExecuteEdges(query.NewQuery(query.MatchEdges).
		AddFilter(query.Filter{Field: "weight", Operator: "gte", Value: minWeight}))
	if err != nil {
		logger.WithError(err).Error("relation report query failed")
		return
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].Weight > edges[j].Weight })
	for _, e := range edges {
		logger.WithFields(logrus.Fields{
			"subject":    labels[e.Source],
			"predicate":  e.Type,
			"object":     labels[e.Target],
			"confidence": e.Weight,
		}).Info("relation")
	}
}

func buildStores(logger *logrus.Logger, outPath, xlsxPath, neo4jURI, neo4jUser, neo4jPass string) []graph.KnowledgeGraphStore {
	var stores []graph.KnowledgeGraphStore
	if outPath != "" {
		stores = append(stores, storage.NewJSONGraphStore(outPath))
	}
	if xlsxPath != "" {
		stores = append(stores, storage.NewXLSXExporter(xlsxPath))
	}
	if neo4jURI != "" {
		neo, err := storage.NewNeo4jStorage(neo4jURI, neo4jUser, neo4jPass)
		if err != nil {
			logger.WithError(err).Fatal("failed to create Neo4j storage")
		}
		stores = append(stores, neo)
	}
	return stores
}
