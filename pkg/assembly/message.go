// Package assembly reassembles the two nested levels of fragmentation the
// transport core uses: chunks into messages (this file), and messages into
// frames (frame.go). Both levels are grounded on
// core/CppFrameworkLib/MessageAssembly.cpp from the original implementation,
// which keeps one ReassemblyEntry per in-flight identifier, fills its data
// and ECC slots as chunks arrive, and opportunistically reconstructs
// through the erasure coder once enough slots are present.
package assembly

import (
	"sync"

	"github.com/christoph-husse/directremote/pkg/chunk"
	"github.com/christoph-husse/directremote/pkg/ecc"
	"github.com/christoph-husse/directremote/pkg/metrics"
)

// MessageCapacity bounds how many in-flight messages the assembler tracks
// at once (§4.2); the oldest is evicted once a new message arrives past
// this limit.
const MessageCapacity = 512

// Message is a fully reassembled message: the payload a single call to the
// sender's packet assembler produced, plus the frame-placement fields every
// chunk carried.
type Message struct {
	TrackingID  uint64
	MsgIndex    uint8
	MsgCount    uint8
	IsConnected bool
	Data        []byte
}

type messageEntry struct {
	seq      uint64
	msgCount uint8

	k, m int // -1 until the first data/ECC chunk reveals the count

	dataRegions [][]byte
	eccRegions  [][]byte
	dataPresent int
	eccPresent  int

	coder *ecc.Coder
}

// MessageAssembler reassembles data+ECC chunks, keyed by (trackingId,
// msgIndex), into completed messages.
type MessageAssembler struct {
	mu      sync.Mutex
	entries map[uint64]*messageEntry
	seq     uint64
	metrics *metrics.ConnectionMetrics
}

// NewMessageAssembler returns an assembler that charges the given counters
// as it evicts incomplete entries and rejects malformed chunks.
func NewMessageAssembler(m *metrics.ConnectionMetrics) *MessageAssembler {
	return &MessageAssembler{
		entries: make(map[uint64]*messageEntry),
		metrics: m,
	}
}

func messageKey(trackingID uint64, msgIndex uint8) uint64 {
	return trackingID<<8 | uint64(msgIndex)
}

// Process feeds one decoded chunk into the assembler. It returns the
// completed message and true once every data chunk has either arrived
// directly or been recovered through the erasure coder; otherwise it
// returns (nil, false) and the chunk is held for a later call.
func (a *MessageAssembler) Process(c *chunk.Chunk) (*Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := messageKey(c.TrackingID, c.MsgIndex)
	entry, ok := a.entries[key]
	if !ok {
		entry = &messageEntry{k: -1, m: -1}
		a.insertLocked(key, entry)
	}
	entry.msgCount = c.MsgCount

	region := c.Region()
	if c.IsEccChunk {
		a.storeLocked(entry, &entry.m, &entry.eccRegions, &entry.eccPresent, c.ChunkIndex, c.ChunkCount, region)
	} else {
		a.storeLocked(entry, &entry.k, &entry.dataRegions, &entry.dataPresent, c.ChunkIndex, c.ChunkCount, region)
	}

	data, complete := a.tryReconstructLocked(entry)
	if !complete {
		return nil, false
	}

	delete(a.entries, key)

	_, isConnected, _ := chunk.ParseDataRegion(entry.dataRegions[entry.k-1])
	msg := &Message{
		TrackingID:  c.TrackingID,
		MsgIndex:    c.MsgIndex,
		MsgCount:    entry.msgCount,
		IsConnected: isConnected,
		Data:        data,
	}
	return msg, true
}

func (a *MessageAssembler) storeLocked(entry *messageEntry, count *int, regions *[][]byte, present *int, idx, cnt uint8, region []byte) {
	if *count == -1 {
		*count = int(cnt)
		*regions = make([][]byte, *count)
	}
	if int(idx) >= *count {
		a.metrics.InvalidPackets++
		return
	}
	if (*regions)[idx] != nil {
		a.metrics.DuplicatePackets++
		return
	}
	(*regions)[idx] = region
	*present++
}

// tryReconstructLocked assembles the message's payload once every data slot
// is filled, reconstructing missing data slots from ECC parity first if
// necessary. Mirrors MessageAssembly.cpp's tryReconstruct / reassembleEccPacket.
func (a *MessageAssembler) tryReconstructLocked(entry *messageEntry) ([]byte, bool) {
	if entry.k <= 0 {
		return nil, false
	}
	if entry.dataPresent < entry.k {
		if entry.m <= 0 || entry.dataPresent+entry.eccPresent < entry.k {
			return nil, false
		}
		if entry.coder == nil {
			c, err := ecc.New(entry.k, entry.m)
			if err != nil {
				a.metrics.InvalidFrames++
				return nil, false
			}
			entry.coder = c
		}
		shards := make([][]byte, entry.k+entry.m)
		copy(shards[0:entry.k], entry.dataRegions)
		copy(shards[entry.k:], entry.eccRegions)
		if err := entry.coder.Reconstruct(shards); err != nil {
			a.metrics.InvalidFrames++
			return nil, false
		}
		copy(entry.dataRegions, shards[0:entry.k])
		entry.dataPresent = entry.k
	}

	a.metrics.ValidPackets++

	out := make([]byte, 0, entry.k*chunk.PayloadSize)
	for i := 0; i < entry.k; i++ {
		size, _, data := chunk.ParseDataRegion(entry.dataRegions[i])
		n := int(size)
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n]...)
	}
	return out, true
}

// insertLocked records a new entry and evicts the oldest one once the
// table exceeds MessageCapacity, charging the missing chunks of the
// evicted entry as lost (§4.2 cleanupHistory).
func (a *MessageAssembler) insertLocked(key uint64, entry *messageEntry) {
	a.seq++
	entry.seq = a.seq
	a.entries[key] = entry

	if len(a.entries) <= MessageCapacity {
		return
	}
	var oldestKey uint64
	var oldest *messageEntry
	for k, e := range a.entries {
		if oldest == nil || e.seq < oldest.seq {
			oldestKey, oldest = k, e
		}
	}
	if oldest != nil {
		delete(a.entries, oldestKey)
		if oldest.k > 0 {
			a.metrics.LostPackets += int64(oldest.k - oldest.dataPresent)
		}
		if oldest.m > 0 {
			a.metrics.LostPackets += int64(oldest.m - oldest.eccPresent)
		}
	}
}
