package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vigia"

// Metrics holds the Prometheus collectors of the perception pipeline.
type Metrics struct {
	FramesPublished  *prometheus.CounterVec
	ConsumerDrops    *prometheus.CounterVec
	ConsumerQueue    *prometheus.GaugeVec
	CameraOnline     *prometheus.GaugeVec
	FramesProcessed  *prometheus.CounterVec
	InferenceLatency *prometheus.HistogramVec
	FaceMatches      *prometheus.CounterVec
	ActiveTracks     *prometheus.GaugeVec
	AttendanceEvents prometheus.Counter
	Alerts           *prometheus.CounterVec
	SinkErrors       *prometheus.CounterVec
	SinkDrops        *prometheus.CounterVec

	// Sampled by the Aggregator
	EnrolledIdentities prometheus.Gauge
	EnrolledEmbeddings prometheus.Gauge
	IdleConsumers      *prometheus.GaugeVec
	Viewers            *prometheus.GaugeVec
}

// New creates the collectors and registers them on registry.
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FramesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_frames_published_total",
			Help:      "Frames accepted by the broadcast hub",
		}, []string{"camera"}),
		ConsumerDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_consumer_drops_total",
			Help:      "Frames discarded from a consumer queue because the consumer fell behind",
		}, []string{"camera", "consumer"}),
		ConsumerQueue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_consumer_queue_depth",
			Help:      "Undelivered frames waiting in a consumer queue",
		}, []string{"camera", "consumer"}),
		CameraOnline: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_online",
			Help:      "1 when the camera producer is connected",
		}, []string{"camera"}),
		FramesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_frames_total",
			Help:      "Frames handled by the ML worker by outcome",
		}, []string{"camera", "outcome"}),
		InferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Latency of serialized inference calls",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"stage"}),
		FaceMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "face_matches_total",
			Help:      "Face match attempts by result",
		}, []string{"result"}),
		ActiveTracks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracker_active_tracks",
			Help:      "Live person tracks per camera",
		}, []string{"camera"}),
		AttendanceEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_events_total",
			Help:      "Attendance events emitted after deduplication",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted after cool-down",
		}, []string{"label", "severity"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Event sink delivery failures",
		}, []string{"sink"}),
		SinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_drops_total",
			Help:      "Events discarded because a sink queue was full",
		}, []string{"sink"}),
		EnrolledIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enrolled_identities",
			Help:      "Identities held by the in-memory matcher",
		}),
		EnrolledEmbeddings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enrolled_embeddings",
			Help:      "Reference embeddings held by the in-memory matcher",
		}),
		IdleConsumers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_idle_consumers",
			Help:      "Consumers that have not taken a frame within the idle threshold",
		}, []string{"camera"}),
		Viewers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_viewers",
			Help:      "Connected viewer sockets per camera",
		}, []string{"camera"}),
	}

	collectors := []prometheus.Collector{
		m.FramesPublished, m.ConsumerDrops, m.ConsumerQueue, m.CameraOnline,
		m.FramesProcessed, m.InferenceLatency, m.FaceMatches, m.ActiveTracks,
		m.AttendanceEvents, m.Alerts, m.SinkErrors, m.SinkDrops,
		m.EnrolledIdentities, m.EnrolledEmbeddings, m.IdleConsumers, m.Viewers,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return m, nil
}

// NewUnregistered returns collectors that are not attached to any registry.
// Tests and tools that do not expose /metrics use it.
func NewUnregistered() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		// a fresh registry cannot hold duplicates
		panic(err)
	}
	return m
}
