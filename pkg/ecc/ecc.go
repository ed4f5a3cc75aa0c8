// Package ecc wraps the Cauchy Reed-Solomon erasure code used to recover
// missing data chunks from parity chunks (spec §4.1/§4.2). The actual
// coding math is delegated to github.com/klauspost/reedsolomon, the
// erasure-code library the retrieved corpus's own UDP/FEC stack
// (xtaci/kcp-go, xtaci/kcptun) is built on — this package only adapts its
// shard-slice API to the transport core's 496-byte block size.
package ecc

import (
	"errors"

	"github.com/klauspost/reedsolomon"
)

// BlockSize is the fixed size of every data/parity block the coder
// operates on, matching the chunk codec's ECC region (§3: "must be a
// multiple of 8").
const BlockSize = 496

var errBlockSize = errors.New("ecc: block is not BlockSize bytes")

// Coder encodes and reconstructs a fixed K-data/M-parity group.
type Coder struct {
	k, m int
	enc  reedsolomon.Encoder
}

// New returns a Coder for k data blocks and m parity blocks. k and m must
// both be positive; k+m must not exceed 256 (the library's shard limit),
// which is always true here since k <= 127 and m <= 128 per §3/§4.1.
func New(k, m int) (*Coder, error) {
	if k <= 0 || m <= 0 {
		return nil, errors.New("ecc: k and m must be positive")
	}
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, err
	}
	return &Coder{k: k, m: m, enc: enc}, nil
}

// Encode computes m parity blocks from k data blocks. data must have
// length k and parity length m; every block must be BlockSize bytes.
func (c *Coder) Encode(data, parity [][]byte) error {
	if len(data) != c.k || len(parity) != c.m {
		return errors.New("ecc: wrong shard count")
	}
	shards := make([][]byte, c.k+c.m)
	for i, d := range data {
		if len(d) != BlockSize {
			return errBlockSize
		}
		shards[i] = d
	}
	for i, p := range parity {
		if len(p) != BlockSize {
			return errBlockSize
		}
		shards[c.k+i] = p
	}
	return c.enc.Encode(shards)
}

// Reconstruct fills in missing data blocks given a partial set of data and
// parity blocks. shards must have length k+m, indexed [0,k) for data and
// [k,k+m) for parity; a nil entry marks a missing block. On success every
// data slot [0,k) is populated. Returns an error if there are not enough
// surviving blocks (fewer than k total) to recover.
func (c *Coder) Reconstruct(shards [][]byte) error {
	if len(shards) != c.k+c.m {
		return errors.New("ecc: wrong shard count")
	}
	present := 0
	for i, s := range shards {
		if s == nil {
			continue
		}
		if len(s) != BlockSize {
			return errBlockSize
		}
		present++
		_ = i
	}
	if present < c.k {
		return errors.New("ecc: not enough surviving blocks to reconstruct")
	}
	return c.enc.ReconstructData(shards)
}
