package viewerresponse

import (
	"github.com/christoph-husse/directremote/pkg/metrics"
)

// Listener receives the decoded events from a host-side Decoder. Grounded
// on the ResponseListener callback interface in
// original_source/core/CppFrameworkLib/include/IResponseListener.h.
type Listener interface {
	OnMouseAbsolute(x, y float32)
	OnMouseRelative(dx, dy float32)
	OnAxisEvent(sourceType, axisID int8, value float32)
	OnButtonEvent(sourceType int8, isPressed bool, buttonID int8, unicodeChar int32)
	OnProfilingEvent(sample ProfilingSample)
}

// Decoder parses viewer-response packets on the host side, deduplicating
// input and profiling events by their wire-assigned ids so a packet
// resent after a drop doesn't replay already-handled input. Grounded on
// ViewerResponseDecoder / ViewerResponseDecoderImpl.
type Decoder struct {
	clientID int32
	mouseX, mouseY           float32
	mouseDeltaX, mouseDeltaY float32
	metrics                  metrics.ConnectionMetrics

	seenAxis       map[int16]bool
	seenButton     map[int16]bool
	seenProfiling  map[int64]bool

	listener Listener
}

// NewDecoder returns a Decoder with no listener attached; set one with
// SetListener before calling ParsePacket.
func NewDecoder() *Decoder {
	return &Decoder{
		seenAxis:      make(map[int16]bool),
		seenButton:    make(map[int16]bool),
		seenProfiling: make(map[int64]bool),
	}
}

// SetListener installs the callback that receives decoded events.
func (d *Decoder) SetListener(l Listener) {
	d.listener = l
}

// ClientID returns the most recently decoded packet's client id.
func (d *Decoder) ClientID() int32 { return d.clientID }

// Metrics returns the most recently decoded connection metrics.
func (d *Decoder) Metrics() metrics.ConnectionMetrics { return d.metrics }

// ParsePacket decodes one viewer-response payload. Packets that don't
// start with the expected magic value are silently ignored, since they
// are not viewer-response packets at all (an unrelated message sharing
// the channel).
func (d *Decoder) ParsePacket(data []byte) {
	p, ok := unmarshalPacket(data)
	if !ok {
		return
	}

	d.clientID = p.ClientID
	d.mouseX, d.mouseY = p.MouseX, p.MouseY
	d.mouseDeltaX, d.mouseDeltaY = p.MouseDeltaX, p.MouseDeltaY
	d.metrics = p.Metrics

	if d.listener != nil {
		d.listener.OnMouseAbsolute(d.mouseX, d.mouseY)
		d.listener.OnMouseRelative(d.mouseDeltaX, d.mouseDeltaY)
	}

	axisCount := clampCount(int(p.AxisCount), MaxAxisCount)
	for i := 0; i < axisCount; i++ {
		a := p.AxisValues[i]
		if d.seenAxis[a.InputID] {
			continue
		}
		d.seenAxis[a.InputID] = true
		if d.listener != nil {
			d.listener.OnAxisEvent(a.DeviceID, a.AxisID, a.Value)
		}
	}

	buttonCount := clampCount(int(p.ButtonCount), MaxButtonCount)
	for i := 0; i < buttonCount; i++ {
		b := p.ButtonValues[i]
		if d.seenButton[b.InputID] {
			continue
		}
		d.seenButton[b.InputID] = true
		if d.listener != nil {
			d.listener.OnButtonEvent(b.DeviceID, b.IsPressed != 0, b.ButtonID, b.UnicodeChar)
		}
	}

	profilingCount := clampCount(int(p.ProfilingCount), MaxProfilingCount)
	metricIndex := 0
	for i := 0; i < profilingCount; i++ {
		prof := p.ProfilingEntries[i]
		end := clampCount(int(prof.MetricIndex), MaxMetricCount)

		if d.seenProfiling[prof.TrackingID] {
			metricIndex = end
			continue
		}
		d.seenProfiling[prof.TrackingID] = true

		sample := ProfilingSample{TrackingID: prof.TrackingID, Metrics: make(map[Metric]float64)}
		for ; metricIndex < end; metricIndex++ {
			m := p.MetricEntries[metricIndex]
			sample.Metrics[Metric(m.MetricID)] = float64(m.Value)
		}
		if d.listener != nil {
			d.listener.OnProfilingEvent(sample)
		}
	}
}

func clampCount(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
