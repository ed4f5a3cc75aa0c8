package viewerresponse

import (
	"testing"

	"github.com/christoph-husse/directremote/pkg/metrics"
)

type recordingListener struct {
	mouseAbs   [][2]float32
	mouseRel   [][2]float32
	axisEvents []struct {
		source, axis int8
		value        float32
	}
	buttonEvents []struct {
		source      int8
		pressed     bool
		button      int8
		unicodeChar int32
	}
	profiling []ProfilingSample
}

func (l *recordingListener) OnMouseAbsolute(x, y float32) { l.mouseAbs = append(l.mouseAbs, [2]float32{x, y}) }
func (l *recordingListener) OnMouseRelative(dx, dy float32) {
	l.mouseRel = append(l.mouseRel, [2]float32{dx, dy})
}
func (l *recordingListener) OnAxisEvent(source, axis int8, value float32) {
	l.axisEvents = append(l.axisEvents, struct {
		source, axis int8
		value        float32
	}{source, axis, value})
}
func (l *recordingListener) OnButtonEvent(source int8, pressed bool, button int8, unicodeChar int32) {
	l.buttonEvents = append(l.buttonEvents, struct {
		source      int8
		pressed     bool
		button      int8
		unicodeChar int32
	}{source, pressed, button, unicodeChar})
}
func (l *recordingListener) OnProfilingEvent(sample ProfilingSample) {
	l.profiling = append(l.profiling, sample)
}

func TestEncodeDecodeMouseAndMetrics(t *testing.T) {
	enc := NewEncoder()
	enc.TrackMouseAbsolute(10, 20)
	enc.TrackMouseRelative(1, 2)
	enc.TrackMouseRelative(3, 4)
	enc.TrackMetrics(metrics.ConnectionMetrics{LostPackets: 5, ValidPackets: 100})

	packets := enc.ToPackets()
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}

	dec := NewDecoder()
	l := &recordingListener{}
	dec.SetListener(l)
	dec.ParsePacket(packets[0])

	if len(l.mouseAbs) != 1 || l.mouseAbs[0] != [2]float32{10, 20} {
		t.Errorf("mouse absolute mismatch: %v", l.mouseAbs)
	}
	if len(l.mouseRel) != 1 || l.mouseRel[0] != [2]float32{4, 6} {
		t.Errorf("mouse relative mismatch: %v", l.mouseRel)
	}
	if dec.Metrics().LostPackets != 5 || dec.Metrics().ValidPackets != 100 {
		t.Errorf("metrics mismatch: %+v", dec.Metrics())
	}
}

func TestEncodeDecodeButtonAndAxisEvents(t *testing.T) {
	enc := NewEncoder()
	enc.TrackButton(1, true, 2, 'a')
	enc.TrackAxis(1, 3, 0.5)

	packets := enc.ToPackets()
	dec := NewDecoder()
	l := &recordingListener{}
	dec.SetListener(l)
	for _, p := range packets {
		dec.ParsePacket(p)
	}

	if len(l.buttonEvents) != 1 || l.buttonEvents[0].button != 2 || !l.buttonEvents[0].pressed {
		t.Errorf("button event mismatch: %+v", l.buttonEvents)
	}
	if len(l.axisEvents) != 1 || l.axisEvents[0].axis != 3 || l.axisEvents[0].value != 0.5 {
		t.Errorf("axis event mismatch: %+v", l.axisEvents)
	}
}

func TestEncodeDecodeProfilingSample(t *testing.T) {
	enc := NewEncoder()
	enc.TrackProfiling(ProfilingSample{
		TrackingID: 555,
		Metrics: map[Metric]float64{
			MetricCaptureFps:    60,
			MetricEncodedDatarate: 4096,
		},
	})

	packets := enc.ToPackets()
	dec := NewDecoder()
	l := &recordingListener{}
	dec.SetListener(l)
	for _, p := range packets {
		dec.ParsePacket(p)
	}

	if len(l.profiling) != 1 {
		t.Fatalf("expected 1 profiling sample, got %d", len(l.profiling))
	}
	got := l.profiling[0]
	if got.TrackingID != 555 {
		t.Errorf("trackingId mismatch: %d", got.TrackingID)
	}
	if got.Metrics[MetricCaptureFps] != 60 || got.Metrics[MetricEncodedDatarate] != 4096 {
		t.Errorf("metrics mismatch: %+v", got.Metrics)
	}
}

func TestDecoderDropsDuplicateButtonAcrossPackets(t *testing.T) {
	enc := NewEncoder()
	enc.TrackButton(0, true, 1, 0)
	first := enc.ToPackets()

	// The last packet is retained internally; flushing again without new
	// input re-emits it, simulating a resend of unacknowledged state.
	second := enc.ToPackets()

	dec := NewDecoder()
	l := &recordingListener{}
	dec.SetListener(l)
	for _, p := range first {
		dec.ParsePacket(p)
	}
	for _, p := range second {
		dec.ParsePacket(p)
	}

	if len(l.buttonEvents) != 1 {
		t.Errorf("expected duplicate button event suppressed, got %d events", len(l.buttonEvents))
	}
}

func TestDecoderIgnoresPacketWithoutMagic(t *testing.T) {
	dec := NewDecoder()
	l := &recordingListener{}
	dec.SetListener(l)
	dec.ParsePacket(make([]byte, 400))

	if len(l.mouseAbs) != 0 {
		t.Error("expected garbage payload to be ignored")
	}
}
