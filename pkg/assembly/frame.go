package assembly

import (
	"sort"
	"sync"

	"github.com/christoph-husse/directremote/pkg/metrics"
)

// FrameCapacity bounds how many in-flight frames the assembler tracks at
// once. It is far smaller than MessageCapacity (§4.3): a real-time viewer
// only ever cares about catching up to the newest frame, not buffering a
// deep backlog of stale ones.
const FrameCapacity = 5

// Frame is a fully reassembled frame: every message belonging to the same
// TrackingID, in msgIndex order.
type Frame struct {
	TrackingID  uint64
	IsConnected bool
	Messages    [][]byte
}

type frameEntry struct {
	seq      uint64
	msgCount uint8
	present  int
	slots    [][]byte
	isConn   bool
}

// FrameAssembler is structurally the message assembler one level up: it
// fills msgCount slots per TrackingID instead of chunkCount slots per
// (trackingId, msgIndex), with no erasure coding at this level, since
// recovery already happened while reassembling the individual messages.
type FrameAssembler struct {
	mu      sync.Mutex
	entries map[uint64]*frameEntry
	seq     uint64
	metrics *metrics.ConnectionMetrics
}

// NewFrameAssembler returns an assembler that charges the given counters.
func NewFrameAssembler(m *metrics.ConnectionMetrics) *FrameAssembler {
	return &FrameAssembler{
		entries: make(map[uint64]*frameEntry),
		metrics: m,
	}
}

// Process feeds one reassembled message into the frame assembler. It
// returns the completed frame and true once every message of that
// TrackingID has arrived.
//
// Completing a frame flushes every pending entry with a smaller
// TrackingID: a viewer only renders the newest frame, so any frame still
// incomplete when a later one finishes is hopelessly out of order and is
// dropped, charging OutOfOrderFrames (§4.3). Pending entries with a larger
// TrackingID are kept.
func (a *FrameAssembler) Process(m *Message) (*Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[m.TrackingID]
	if !ok {
		entry = &frameEntry{slots: make([][]byte, m.MsgCount), msgCount: m.MsgCount}
		a.insertLocked(m.TrackingID, entry)
	}
	if int(m.MsgIndex) >= len(entry.slots) {
		a.metrics.InvalidFrames++
		return nil, false
	}
	if entry.slots[m.MsgIndex] == nil {
		entry.slots[m.MsgIndex] = m.Data
		entry.present++
		entry.isConn = m.IsConnected
	}

	if entry.present < int(entry.msgCount) {
		return nil, false
	}

	delete(a.entries, m.TrackingID)
	a.flushStaleLocked(m.TrackingID)

	return &Frame{TrackingID: m.TrackingID, IsConnected: entry.isConn, Messages: entry.slots}, true
}

// flushStaleLocked drops every remaining entry older than the TrackingID
// that just completed, per the out-of-order semantics above.
func (a *FrameAssembler) flushStaleLocked(completed uint64) {
	for k := range a.entries {
		if k < completed {
			a.metrics.OutOfOrderFrames++
			delete(a.entries, k)
		}
	}
}

func (a *FrameAssembler) insertLocked(key uint64, entry *frameEntry) {
	a.seq++
	entry.seq = a.seq
	a.entries[key] = entry

	if len(a.entries) <= FrameCapacity {
		return
	}
	keys := make([]uint64, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return a.entries[keys[i]].seq < a.entries[keys[j]].seq })
	oldestKey := keys[0]
	oldest := a.entries[oldestKey]
	delete(a.entries, oldestKey)
	a.metrics.LostFrames += int64(int(oldest.msgCount) - oldest.present)
}
