package ecc

import (
	"bytes"
	"testing"
)

func block(fill byte) []byte {
	b := make([]byte, BlockSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestEncodeReconstructRoundTrip(t *testing.T) {
	c, err := New(4, 2)
	if err != nil {
		t.Fatal(err)
	}

	data := [][]byte{block(1), block(2), block(3), block(4)}
	parity := [][]byte{block(0), block(0)}

	if err := c.Encode(data, parity); err != nil {
		t.Fatalf("encode: %v", err)
	}

	shards := make([][]byte, 6)
	copy(shards[0:4], data)
	copy(shards[4:6], parity)

	// drop two data shards, recoverable since we have 2 parity shards
	lost0 := append([]byte(nil), shards[0]...)
	lost1 := append([]byte(nil), shards[1]...)
	shards[0] = nil
	shards[1] = nil

	if err := c.Reconstruct(shards); err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	if !bytes.Equal(shards[0], lost0) {
		t.Error("shard 0 not recovered correctly")
	}
	if !bytes.Equal(shards[1], lost1) {
		t.Error("shard 1 not recovered correctly")
	}
}

func TestReconstructFailsWithTooFewShards(t *testing.T) {
	c, err := New(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	shards := make([][]byte, 6)
	shards[0] = block(1) // only one surviving shard, need >= 4
	if err := c.Reconstruct(shards); err == nil {
		t.Error("expected error when fewer than k shards survive")
	}
}

func TestNewRejectsNonPositiveShardCounts(t *testing.T) {
	if _, err := New(0, 1); err == nil {
		t.Error("expected error for k=0")
	}
	if _, err := New(1, 0); err == nil {
		t.Error("expected error for m=0")
	}
}
