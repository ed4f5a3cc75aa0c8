// Package viewerresponse implements the viewer-to-host back channel: input
// events, profiling samples, and connection metrics piggybacked into a
// single fixed-layout packet per chunk, grounded on
// original_source/core/CppFrameworkLib/ViewerResponseBuilder.cpp.
package viewerresponse

import (
	"bytes"
	"encoding/binary"

	"github.com/christoph-husse/directremote/pkg/metrics"
)

const (
	// MaxAxisCount, MaxButtonCount, MaxProfilingCount and MaxMetricCount
	// are fixed array sizes on the wire (ViewerReponsePacket's
	// axisValues/buttonValues/profilingEntries/metricEntries).
	MaxAxisCount       = 14
	MaxButtonCount     = 10
	MaxProfilingCount  = 5
	MaxMetricCount     = 27

	// magic identifies a viewer-response packet; any chunk payload not
	// starting with this value is not one of ours.
	magic int64 = 0x40a18bb97919adf4
)

type wireAxis struct {
	InputID  int16
	DeviceID int8
	AxisID   int8
	Value    float32
}

type wireButton struct {
	InputID     int16
	DeviceID    int8
	IsPressed   int8
	ButtonID    int8
	UnicodeChar int32
}

type wireProfiling struct {
	TrackingID  int64
	MetricIndex int8
}

type wireMetric struct {
	MetricID int8
	Value    float32
}

// wirePacket is the exact byte layout sent on the wire, matching
// ViewerReponsePacket field for field so encoding/binary can marshal it
// without any manual bit-packing.
type wirePacket struct {
	Magic                              int64
	ClientID                           int32
	MouseX, MouseY                     float32
	MouseDeltaX, MouseDeltaY           float32
	Metrics                            metrics.ConnectionMetrics
	AxisCount                          int8
	AxisValues                         [MaxAxisCount]wireAxis
	ButtonCount                        int8
	ButtonValues                       [MaxButtonCount]wireButton
	ProfilingCount                     int8
	ProfilingEntries                   [MaxProfilingCount]wireProfiling
	MetricEntries                      [MaxMetricCount]wireMetric
}

func (p *wirePacket) marshal() []byte {
	buf := new(bytes.Buffer)
	// binary.Write cannot fail on a fixed-size struct of fixed-size
	// fields; the error is only reachable for unsupported types.
	_ = binary.Write(buf, binary.LittleEndian, p)
	return buf.Bytes()
}

func unmarshalPacket(data []byte) (*wirePacket, bool) {
	var p wirePacket
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &p); err != nil {
		return nil, false
	}
	if p.Magic != magic {
		return nil, false
	}
	return &p, true
}
