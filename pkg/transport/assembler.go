// Package transport implements the sender-side packet assembler and the
// endpoint connection state machine that drives a point-to-point session
// over UDP, grounded on
// original_source/core/RawProtocols/UdpProtocol.cpp and
// core/CppFrameworkLib/PacketAssembly.cpp.
package transport

import (
	"errors"
	"math"

	"github.com/christoph-husse/directremote/pkg/chunk"
	"github.com/christoph-husse/directremote/pkg/ecc"
)

// DefaultEccRatio is the default parity-chunks-per-data-chunk ratio
// (PacketAssembly::processFrame's eccPacketsPerDataPacket default).
const DefaultEccRatio = 0.1

var errMessageTooLarge = errors.New("transport: message exceeds 127 chunks")

// Assembler splits an outgoing frame into data and ECC chunks, mirroring
// PacketAssembly::processFrame: a frame is cut into MaxMessageSize
// messages, each message into up to 127 data chunks, and an erasure code
// computed per message so recovery only ever needs to wait for one
// message's worth of chunks, not the whole frame's.
type Assembler struct {
	// EccRatio is the number of parity chunks produced per data chunk in
	// a message, clamped to the range [1, 128] parity chunks overall.
	EccRatio float64
}

// NewAssembler returns an Assembler using DefaultEccRatio.
func NewAssembler() *Assembler {
	return &Assembler{EccRatio: DefaultEccRatio}
}

// AssembleFrame splits payload into data and ECC chunks ready to send.
// Every chunk's MsgIndex/MsgCount/ChunkIndex/ChunkCount are populated;
// TrackingID and SessionID are left zero for the caller (typically the
// endpoint's send loop) to fill in at transmission time.
func (a *Assembler) AssembleFrame(payload []byte) (data, eccChunks []*chunk.Chunk, err error) {
	msgCount := 1
	if len(payload) > 0 {
		msgCount = 1 + (len(payload)-1)/chunk.MaxMessageSize
	}

	for i, offset := 0, 0; i < msgCount; i, offset = i+1, offset+chunk.MaxMessageSize {
		end := offset + chunk.MaxMessageSize
		if end > len(payload) {
			end = len(payload)
		}
		msgData, msgEcc, err := a.assembleMessage(payload[offset:end])
		if err != nil {
			return nil, nil, err
		}
		for _, c := range msgData {
			c.MsgIndex, c.MsgCount = uint8(i), uint8(msgCount)
			data = append(data, c)
		}
		for _, c := range msgEcc {
			c.MsgIndex, c.MsgCount = uint8(i), uint8(msgCount)
			eccChunks = append(eccChunks, c)
		}
	}

	return data, eccChunks, nil
}

func (a *Assembler) assembleMessage(bytes []byte) (data, eccChunks []*chunk.Chunk, err error) {
	n := len(bytes)
	chunkCount := 1
	if n > 1 {
		chunkCount = 1 + (n-1)/chunk.PayloadSize
	}
	if chunkCount > chunk.MaxChunksPerMessage {
		return nil, nil, errMessageTooLarge
	}

	data = make([]*chunk.Chunk, chunkCount)
	for i, offset := 0, 0; i < chunkCount; i, offset = i+1, offset+chunk.PayloadSize {
		size := n - offset
		if size > chunk.PayloadSize {
			size = chunk.PayloadSize
		}
		if size < 0 {
			size = 0
		}
		c := &chunk.Chunk{
			ChunkIndex:  uint8(i),
			ChunkCount:  uint8(chunkCount),
			IsConnected: true,
			Size:        uint16(size),
		}
		copy(c.Data[:], bytes[offset:offset+size])
		data[i] = c
	}

	eccCount := int(math.Ceil(float64(chunkCount) * a.EccRatio))
	if eccCount < 1 {
		eccCount = 1
	}
	if eccCount > 128 {
		eccCount = 128
	}

	coder, err := ecc.New(chunkCount, eccCount)
	if err != nil {
		return nil, nil, err
	}
	dataRegions := make([][]byte, chunkCount)
	for i, c := range data {
		dataRegions[i] = c.Region()
	}
	parity := make([][]byte, eccCount)
	for i := range parity {
		parity[i] = make([]byte, ecc.BlockSize)
	}
	if err := coder.Encode(dataRegions, parity); err != nil {
		return nil, nil, err
	}

	eccChunks = make([]*chunk.Chunk, eccCount)
	for i := range parity {
		c := &chunk.Chunk{
			IsEccChunk: true,
			ChunkIndex: uint8(i),
			ChunkCount: uint8(eccCount),
		}
		copy(c.ECC[:], parity[i])
		eccChunks[i] = c
	}

	return data, eccChunks, nil
}

// Interleave orders data and ECC chunks the way the wire expects them sent:
// with step = max(1, len(data)/len(eccChunks)), the output starts with an
// ECC chunk and every step-th slot after it holds the next ECC chunk, the
// slots in between hold data chunks, and any ECC chunks left once the data
// runs out are appended at the end (UdpProtocol::sendPackets). Spreading ECC chunks
// across the transmission instead of sending them all at once means a
// burst loss is more likely to be covered by surviving parity.
func Interleave(data, eccChunks []*chunk.Chunk) []*chunk.Chunk {
	out := make([]*chunk.Chunk, 0, len(data)+len(eccChunks))
	step := 1
	if len(eccChunks) > 0 {
		step = len(data) / len(eccChunks)
		if step < 1 {
			step = 1
		}
	}

	j, x := 0, 0
	for i := 0; x < len(data); i++ {
		if i%step == 0 && j < len(eccChunks) {
			out = append(out, eccChunks[j])
			j++
		} else {
			out = append(out, data[x])
			x++
		}
	}
	for ; j < len(eccChunks); j++ {
		out = append(out, eccChunks[j])
	}
	return out
}
