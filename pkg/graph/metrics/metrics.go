// Package metrics registers the process-level Prometheus collectors the
// extraction pipeline and its hosts share. Stage-scoped collectors live
// next to the engine; what belongs here is graph size and system load.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_used_bytes",
		Help: "Host memory in use",
	})

	SystemMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_used_percent",
		Help: "Host memory utilization",
	})

	SystemCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_cpu_percent",
		Help: "Host CPU utilization",
	})

	ProcessHeapBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "process_heap_alloc_bytes",
		Help: "Go heap bytes currently allocated",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_goroutines",
		Help: "Number of goroutines",
	})

	// Pipeline metrics
	PipelineQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_queue_length",
		Help: "Number of documents waiting to be processed",
	})

	DocumentProcessingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_processing_errors_total",
			Help: "Total number of document processing errors",
		},
		[]string{"stage", "error_kind"},
	)

	// Graph metrics
	GraphNodeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graph_nodes_total",
			Help: "Total number of nodes in the graph",
		},
		[]string{"node_type"},
	)

	GraphEdgeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graph_edges_total",
			Help: "Total number of edges in the graph",
		},
		[]string{"predicate"},
	)
)

// UpdateSystemMetrics refreshes the host- and process-level gauges.
// gopsutil failures leave the affected gauge at its previous value.
func UpdateSystemMetrics() {
	if vm, err := mem.VirtualMemory(); err == nil {
		SystemMemoryUsage.Set(float64(vm.Used))
		SystemMemoryPercent.Set(vm.UsedPercent)
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		SystemCPUPercent.Set(percents[0])
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	ProcessHeapBytes.Set(float64(m.HeapAlloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}
