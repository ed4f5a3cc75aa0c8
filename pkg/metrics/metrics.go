// Package metrics defines the connection counters mutated throughout the
// reassembly and transport pipeline (spec §3) and mirrors them into
// Prometheus instruments for export, grounded on the corpus's own
// socket-instrumentation repositories (runZeroInc-sockstats,
// runZeroInc-conniver), which both build their exporters on
// prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConnectionMetrics is the plain counter block the spec's testable
// properties assert against (§8). It is mutated synchronously by the
// receive task only (§5 "Shared resource policy") and is safe for
// concurrent reads by the owner's task, which must tolerate stale values.
type ConnectionMetrics struct {
	LostPackets       int64
	LostFrames        int64
	InvalidFrames     int64
	OutOfOrderFrames  int64
	IncomingPackets   int64
	ValidPackets      int64
	InvalidPackets    int64
	DuplicatePackets  int64
}

// Snapshot returns a copy, safe to hand to a reader on another goroutine.
func (m *ConnectionMetrics) Snapshot() ConnectionMetrics {
	return *m
}

// Exporter mirrors a ConnectionMetrics into Prometheus counters. It is
// purely additive instrumentation: the plain struct above remains the
// source of truth the core's tests assert against (§8); each call to
// Exporter.Sync copies the deltas since the previous call into monotonic
// Prometheus counters.
type Exporter struct {
	prev ConnectionMetrics

	lostPackets      prometheus.Counter
	lostFrames       prometheus.Counter
	invalidFrames    prometheus.Counter
	outOfOrderFrames prometheus.Counter
	incomingPackets  prometheus.Counter
	validPackets     prometheus.Counter
	invalidPackets   prometheus.Counter
	duplicatePackets prometheus.Counter
}

// NewExporter registers a family of counters labeled with the given
// session identifier and returns an Exporter ready to track deltas.
func NewExporter(reg prometheus.Registerer, sessionID string) *Exporter {
	labels := prometheus.Labels{"session_id": sessionID}
	mk := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "directremote",
			Subsystem:   "transport",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		if reg != nil {
			reg.MustRegister(c)
		}
		return c
	}

	return &Exporter{
		lostPackets:      mk("lost_packets_total", "Packets charged as lost on capacity eviction."),
		lostFrames:       mk("lost_frames_total", "Frames charged as lost on capacity eviction."),
		invalidFrames:    mk("invalid_frames_total", "Frames that failed ECC reconstruction."),
		outOfOrderFrames: mk("out_of_order_frames_total", "Frames discarded by an out-of-order flush."),
		incomingPackets:  mk("incoming_packets_total", "Packets accepted by the receive loop."),
		validPackets:     mk("valid_packets_total", "Packets that contributed to a completed entry."),
		invalidPackets:   mk("invalid_packets_total", "Packets dropped for malformed indices."),
		duplicatePackets: mk("duplicate_packets_total", "Packets dropped as duplicates."),
	}
}

// Sync adds the delta between cur and the last observed snapshot to the
// Prometheus counters, then remembers cur as the new baseline. Counters
// only ever increase, matching Prometheus's counter semantics and the
// core's own counters, which are never decremented.
func (e *Exporter) Sync(cur ConnectionMetrics) {
	addDelta(e.lostPackets, e.prev.LostPackets, cur.LostPackets)
	addDelta(e.lostFrames, e.prev.LostFrames, cur.LostFrames)
	addDelta(e.invalidFrames, e.prev.InvalidFrames, cur.InvalidFrames)
	addDelta(e.outOfOrderFrames, e.prev.OutOfOrderFrames, cur.OutOfOrderFrames)
	addDelta(e.incomingPackets, e.prev.IncomingPackets, cur.IncomingPackets)
	addDelta(e.validPackets, e.prev.ValidPackets, cur.ValidPackets)
	addDelta(e.invalidPackets, e.prev.InvalidPackets, cur.InvalidPackets)
	addDelta(e.duplicatePackets, e.prev.DuplicatePackets, cur.DuplicatePackets)
	e.prev = cur
}

func addDelta(c prometheus.Counter, prev, cur int64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}
