package viewerresponse

import (
	"math/rand"
	"sync"

	"github.com/christoph-husse/directremote/pkg/metrics"
)

// ProfilingSample is one tracked operation's metric readings, keyed by the
// tracking id that ties it to a specific frame or request.
type ProfilingSample struct {
	TrackingID int64
	Metrics    map[Metric]float64
}

// Encoder accumulates viewer-side input events, profiling samples, and
// connection metrics, and periodically flushes them into fixed-size
// packets ready to send back to the host. Grounded on
// ViewerResponseEncoder / ViewerResponseEncoderImpl.
type Encoder struct {
	mu sync.Mutex

	uniqueness int16
	clientID   int32

	mouseX, mouseY           float32
	mouseDeltaX, mouseDeltaY float32
	metrics                  metrics.ConnectionMetrics

	profilingMetricCount int

	axisQueue, axisHistory     []wireAxis
	buttonQueue, buttonHistory []wireButton
	profilingQueue, profilingHistory []ProfilingSample

	packetQueue [][]byte
}

// NewEncoder returns an encoder with a randomly assigned client id, as the
// original does via std::random_device.
func NewEncoder() *Encoder {
	return &Encoder{
		clientID: rand.Int31(),
	}
}

// ClientID returns this encoder's randomly assigned identity.
func (e *Encoder) ClientID() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientID
}

// TrackMouseAbsolute records the viewer's current cursor position.
func (e *Encoder) TrackMouseAbsolute(x, y float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mouseX, e.mouseY = x, y
}

// TrackMouseRelative accumulates a mouse-delta event until the next flush.
func (e *Encoder) TrackMouseRelative(dx, dy float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mouseDeltaX += dx
	e.mouseDeltaY += dy
}

// TrackMetrics records the viewer's latest connection counters to be
// reported back to the host.
func (e *Encoder) TrackMetrics(m metrics.ConnectionMetrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// TrackButton records a button/key event. Once MaxButtonCount events are
// pending, a packet is generated immediately so input never waits for an
// unrelated flush.
func (e *Encoder) TrackButton(sourceType int8, isPressed bool, buttonID int8, unicodeChar int32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pressed := int8(0)
	if isPressed {
		pressed = 1
	}
	p := wireButton{
		InputID:     e.nextInputID(),
		DeviceID:    sourceType,
		IsPressed:   pressed,
		ButtonID:    buttonID,
		UnicodeChar: unicodeChar,
	}
	e.buttonQueue = append(e.buttonQueue, p)
	e.buttonHistory = appendBounded(e.buttonHistory, p, MaxButtonCount)
	if len(e.buttonQueue) >= MaxButtonCount {
		e.generatePacket()
	}
}

// TrackAxis records an analog-axis event (mouse wheel, gamepad stick...).
func (e *Encoder) TrackAxis(sourceType, axisID int8, value float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := wireAxis{
		InputID:  e.nextInputID(),
		DeviceID: sourceType,
		AxisID:   axisID,
		Value:    value,
	}
	e.axisQueue = append(e.axisQueue, p)
	e.axisHistory = appendBounded(e.axisHistory, p, MaxAxisCount)
	if len(e.axisQueue) >= MaxAxisCount {
		e.generatePacket()
	}
}

// TrackProfiling records a profiling sample. If adding it would overflow
// the metric-entry budget shared across all pending samples, a packet is
// flushed first, matching the original's "no partial sample" rule.
func (e *Encoder) TrackProfiling(sample ProfilingSample) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.profilingMetricCount+len(sample.Metrics) > MaxMetricCount {
		e.generatePacket()
	}
	e.profilingMetricCount += len(sample.Metrics)

	e.profilingQueue = append(e.profilingQueue, sample)
	e.profilingHistory = appendBounded(e.profilingHistory, sample, MaxProfilingCount)
	if len(e.profilingQueue) >= MaxProfilingCount {
		e.generatePacket()
	}
}

// ToPackets flushes any pending state into a final packet and returns
// every packet generated since the previous call, as wire-ready bytes,
// preceded by the last packet the previous call returned. Mirrors
// ViewerResponseEncoder::toPackets, including its quirk of retaining the
// single most recently generated packet in the internal queue, so the
// latest state is sent again on the next call without re-tracking anything.
func (e *Encoder) ToPackets() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generatePacket()

	out := make([][]byte, len(e.packetQueue))
	copy(out, e.packetQueue)

	for len(e.packetQueue) > 1 {
		e.packetQueue = e.packetQueue[1:]
	}
	return out
}

func (e *Encoder) nextInputID() int16 {
	id := e.uniqueness
	e.uniqueness++
	return id
}

func appendBounded[T any](history []T, v T, max int) []T {
	history = append(history, v)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

func (e *Encoder) generatePacket() {
	var p wirePacket
	p.Magic = magic
	p.ClientID = e.clientID
	p.MouseX, p.MouseY = e.mouseX, e.mouseY
	p.MouseDeltaX, p.MouseDeltaY = e.mouseDeltaX, e.mouseDeltaY
	p.Metrics = e.metrics

	e.mouseDeltaX, e.mouseDeltaY = 0, 0
	e.profilingMetricCount = 0

	for i := 0; i < len(e.axisHistory) && int(p.AxisCount) < MaxAxisCount; i++ {
		p.AxisValues[p.AxisCount] = e.axisHistory[i]
		p.AxisCount++
	}
	e.axisQueue = nil

	for i := 0; i < len(e.buttonHistory) && int(p.ButtonCount) < MaxButtonCount; i++ {
		p.ButtonValues[p.ButtonCount] = e.buttonHistory[i]
		p.ButtonCount++
	}
	e.buttonQueue = nil

	metricIndex := 0
	for i := len(e.profilingHistory) - 1; i >= 0 && int(p.ProfilingCount) < MaxProfilingCount; i-- {
		sample := e.profilingHistory[i]
		start := metricIndex
		hasSpace := true

		for _, id := range sortedMetricIDs(sample.Metrics) {
			if metricIndex >= MaxMetricCount {
				hasSpace = false
				break
			}
			p.MetricEntries[metricIndex] = wireMetric{MetricID: int8(id), Value: float32(sample.Metrics[id])}
			metricIndex++
		}

		if !hasSpace {
			metricIndex = start
			break
		}

		p.ProfilingEntries[p.ProfilingCount] = wireProfiling{TrackingID: sample.TrackingID, MetricIndex: int8(metricIndex)}
		p.ProfilingCount++
	}
	e.profilingQueue = nil

	e.packetQueue = append(e.packetQueue, p.marshal())
}

// sortedMetricIDs returns m's keys in ascending order, so the wire layout
// is deterministic given the same input.
func sortedMetricIDs(m map[Metric]float64) []Metric {
	ids := make([]Metric, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
