package main

import (
	"fmt"
	"io"

	"sidecraft.ai/internal/persistence/indexdb"
	"sidecraft.ai/internal/sim/world/stream"
)

type metricsSource struct {
	worldID string
	ticks   func() uint64
	frame   func() *stream.Frame
	clients func() int
	index   func() (indexdb.Stats, bool)
}

// writeMetrics emits the Prometheus text exposition format.
func writeMetrics(w io.Writer, m metricsSource) {
	fr := m.frame()

	fmt.Fprintf(w, "# HELP sidecraft_world_tick Ticks run since start.\n")
	fmt.Fprintf(w, "# TYPE sidecraft_world_tick counter\n")
	fmt.Fprintf(w, "sidecraft_world_tick{world=%q} %d\n", m.worldID, m.ticks())

	fmt.Fprintf(w, "# HELP sidecraft_stream_loaded_chunks Chunks in the loaded window.\n")
	fmt.Fprintf(w, "# TYPE sidecraft_stream_loaded_chunks gauge\n")
	fmt.Fprintf(w, "sidecraft_stream_loaded_chunks{world=%q} %d\n", m.worldID, fr.Hi-fr.Lo+1)

	fmt.Fprintf(w, "# HELP sidecraft_stream_window_edge Loaded window bounds.\n")
	fmt.Fprintf(w, "# TYPE sidecraft_stream_window_edge gauge\n")
	fmt.Fprintf(w, "sidecraft_stream_window_edge{world=%q,edge=%q} %d\n", m.worldID, "lo", fr.Lo)
	fmt.Fprintf(w, "sidecraft_stream_window_edge{world=%q,edge=%q} %d\n", m.worldID, "hi", fr.Hi)

	fmt.Fprintf(w, "# HELP sidecraft_stream_blocks Loaded blocks by collection.\n")
	fmt.Fprintf(w, "# TYPE sidecraft_stream_blocks gauge\n")
	fmt.Fprintf(w, "sidecraft_stream_blocks{world=%q,kind=%q} %d\n", m.worldID, "solid", len(fr.Solid))
	fmt.Fprintf(w, "sidecraft_stream_blocks{world=%q,kind=%q} %d\n", m.worldID, "decorative", len(fr.Decorative))

	fmt.Fprintf(w, "# HELP sidecraft_stream_seq Window publications since start.\n")
	fmt.Fprintf(w, "# TYPE sidecraft_stream_seq counter\n")
	fmt.Fprintf(w, "sidecraft_stream_seq{world=%q} %d\n", m.worldID, fr.Seq)

	fmt.Fprintf(w, "# HELP sidecraft_feed_clients Connected feed clients.\n")
	fmt.Fprintf(w, "# TYPE sidecraft_feed_clients gauge\n")
	fmt.Fprintf(w, "sidecraft_feed_clients{world=%q} %d\n", m.worldID, m.clients())

	st, ok := m.index()
	if !ok {
		return
	}
	fmt.Fprintf(w, "# HELP sidecraft_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(w, "# TYPE sidecraft_index_queue_depth gauge\n")
	fmt.Fprintf(w, "sidecraft_index_queue_depth{world=%q} %d\n", m.worldID, st.QueueLen)

	fmt.Fprintf(w, "# HELP sidecraft_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(w, "# TYPE sidecraft_index_dropped_total counter\n")
	fmt.Fprintf(w, "sidecraft_index_dropped_total{world=%q,kind=%q} %d\n", m.worldID, "transition", st.DropTransitionTotal)
	fmt.Fprintf(w, "sidecraft_index_dropped_total{world=%q,kind=%q} %d\n", m.worldID, "snapshot", st.DropSnapshotTotal)
}
