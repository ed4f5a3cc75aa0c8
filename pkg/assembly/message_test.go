package assembly

import (
	"bytes"
	"testing"

	"github.com/christoph-husse/directremote/pkg/chunk"
	"github.com/christoph-husse/directremote/pkg/ecc"
	"github.com/christoph-husse/directremote/pkg/metrics"
)

func dataChunks(trackingID uint64, msgIndex, msgCount uint8, payload []byte) []*chunk.Chunk {
	k := (len(payload) + chunk.PayloadSize - 1) / chunk.PayloadSize
	if k == 0 {
		k = 1
	}
	chunks := make([]*chunk.Chunk, k)
	for i := 0; i < k; i++ {
		start := i * chunk.PayloadSize
		end := start + chunk.PayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		c := &chunk.Chunk{
			TrackingID:  trackingID,
			ChunkIndex:  uint8(i),
			ChunkCount:  uint8(k),
			MsgIndex:    msgIndex,
			MsgCount:    msgCount,
			Size:        uint16(end - start),
			IsConnected: true,
		}
		copy(c.Data[:], payload[start:end])
		chunks[i] = c
	}
	return chunks
}

func eccChunks(t *testing.T, data []*chunk.Chunk, m int) []*chunk.Chunk {
	t.Helper()
	k := len(data)
	coder, err := ecc.New(k, m)
	if err != nil {
		t.Fatal(err)
	}
	regions := make([][]byte, k)
	for i, d := range data {
		regions[i] = d.Region()
	}
	parity := make([][]byte, m)
	for i := range parity {
		parity[i] = make([]byte, ecc.BlockSize)
	}
	if err := coder.Encode(regions, parity); err != nil {
		t.Fatal(err)
	}

	out := make([]*chunk.Chunk, m)
	for i := range parity {
		c := &chunk.Chunk{
			TrackingID: data[0].TrackingID,
			IsEccChunk: true,
			ChunkIndex: uint8(i),
			ChunkCount: uint8(m),
			MsgIndex:   data[0].MsgIndex,
			MsgCount:   data[0].MsgCount,
		}
		copy(c.ECC[:], parity[i])
		out[i] = c
	}
	return out
}

func TestMessageAssemblerCompletesFromDataChunksAlone(t *testing.T) {
	a := NewMessageAssembler(&metrics.ConnectionMetrics{})
	payload := bytes.Repeat([]byte{0x7A}, chunk.PayloadSize*3+100)
	chunks := dataChunks(100, 0, 1, payload)

	var got *Message
	for i, c := range chunks {
		msg, complete := a.Process(c)
		if i < len(chunks)-1 {
			if complete {
				t.Fatalf("completed early at chunk %d", i)
			}
			continue
		}
		if !complete {
			t.Fatal("expected completion on final chunk")
		}
		got = msg
	}

	if !bytes.Equal(got.Data, payload) {
		t.Errorf("reassembled payload mismatch: got %d bytes, want %d", len(got.Data), len(payload))
	}
	if !got.IsConnected {
		t.Error("expected IsConnected")
	}
}

func TestMessageAssemblerRecoversMissingDataChunkViaEcc(t *testing.T) {
	a := NewMessageAssembler(&metrics.ConnectionMetrics{})
	payload := bytes.Repeat([]byte{0x11, 0x22, 0x33}, 200)
	data := dataChunks(7, 2, 4, payload)
	ecc := eccChunks(t, data, 2)

	var got *Message
	for i, c := range data {
		if i == 1 {
			continue // drop the last data chunk; one parity chunk is enough to recover it
		}
		if _, complete := a.Process(c); complete {
			t.Fatal("should not complete before ECC arrives")
		}
	}
	for i, c := range ecc {
		msg, complete := a.Process(c)
		if i == 0 {
			if !complete {
				t.Fatal("expected reconstruction to complete the message")
			}
			got = msg
		}
	}

	if !bytes.Equal(got.Data, payload) {
		t.Error("reconstructed payload mismatch")
	}
}

func TestMessageAssemblerDropsDuplicateChunk(t *testing.T) {
	m := &metrics.ConnectionMetrics{}
	a := NewMessageAssembler(m)
	payload := bytes.Repeat([]byte{1}, 50)
	chunks := dataChunks(1, 0, 1, payload)

	a.Process(chunks[0])
	a.Process(chunks[0])
	if m.DuplicatePackets != 1 {
		t.Errorf("expected 1 duplicate, got %d", m.DuplicatePackets)
	}
}

func TestMessageAssemblerEvictsOldestOverCapacity(t *testing.T) {
	m := &metrics.ConnectionMetrics{}
	a := NewMessageAssembler(m)

	for i := 0; i < MessageCapacity+1; i++ {
		c := &chunk.Chunk{TrackingID: uint64(i), ChunkIndex: 0, ChunkCount: 2, MsgIndex: 0, MsgCount: 1, Size: 10}
		a.Process(c)
	}

	if len(a.entries) != MessageCapacity {
		t.Errorf("expected table capped at %d entries, got %d", MessageCapacity, len(a.entries))
	}
	if m.LostPackets == 0 {
		t.Error("expected eviction to charge lost packets")
	}
}
