package viewerresponse

// Metric enumerates the profiling counters a host or viewer can attach to
// a ProfilingSample, grounded on EPerfMetric::Type in
// original_source/core/CFrameworkLib/include/IPerformanceMonitor.h. The
// numeric order must match the original exactly: the wire format stores a
// metric as its bare int8 id (MetricEntry.metricId).
type Metric int8

const (
	MetricMin Metric = iota

	MetricRequestedDatarate

	MetricEncodedDatarate
	MetricCaptureFps

	MetricViewerFps

	MetricHostLostFrames

	MetricViewerLostPackets
	MetricViewerLostFrames
	MetricViewerOutOfOrderFrames
	MetricViewerIncomingPackets
	MetricViewerValidPackets
	MetricViewerInvalidPackets
	MetricViewerDuplicatePackets
	MetricViewerUnableToDecodeFrame
	MetricViewerInsufficientFrameData

	metricCountersEnd

	MetricCaptureFrameDelta
	MetricViewerFrameDelta
	MetricCpuUsage
	MetricGopLength

	MetricTimeReconfigureEncoder
	MetricTimeReconfigureCapture

	MetricTimeScreenCapture
	MetricTimeImportToEncoder
	MetricTimeEncoderPreprocessing
	MetricTimeEncoding

	MetricTimeNetworkRoundtrip

	MetricTimeReconfigureDecoder

	MetricTimeDecoding
	MetricTimeExportFromDecoder
	MetricTimeRendering
	MetricTimePresented

	metricMax
)
